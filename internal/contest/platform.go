package contest

import "cpcal/internal/model"

const (
	placeholderIcon = "/placeholder.svg?height=160&width=160"
	defaultColor    = "#6366F1"
)

// PlatformInfo is display metadata for a platform.
type PlatformInfo struct {
	Name    string `json:"name"`
	IconURL string `json:"iconUrl"`
	Color   string `json:"color"`
}

var platforms = []PlatformInfo{
	{
		Name:    model.PlatformLeetCode,
		IconURL: "https://img.icons8.com/?size=160&id=wDGo581Ea5Nf&format=png",
		Color:   "#FFA116",
	},
	{
		Name:    model.PlatformCodeforces,
		IconURL: "https://img.icons8.com/?size=160&id=jldAN67IAsrW&format=png",
		Color:   "#1890FF",
	},
	{
		Name:    model.PlatformAtCoder,
		IconURL: "https://d1q9av5b648rmv.cloudfront.net/v3/1024x1024/sticker/m/white/front/6242844/1614660290-967x954.png.webp?h=508214e01a4eb6c5b734533da4420fed45bffa88&printed=true",
		Color:   "#6E56CF",
	},
	{
		Name:    model.PlatformCodeChef,
		IconURL: placeholderIcon,
		Color:   "#5CB85C",
	},
}

// Platforms lists the known platforms.
func Platforms() []PlatformInfo {
	out := make([]PlatformInfo, len(platforms))
	copy(out, platforms)
	return out
}

// Platform returns display metadata for name. Unknown platforms get the
// placeholder icon and the default color.
func Platform(name string) PlatformInfo {
	for _, p := range platforms {
		if p.Name == name {
			return p
		}
	}
	return PlatformInfo{Name: name, IconURL: placeholderIcon, Color: defaultColor}
}

// DefaultSelectedPlatforms is the platform filter before the user picks one.
func DefaultSelectedPlatforms() []string {
	return []string{model.PlatformCodeforces, model.PlatformCodeChef, model.PlatformLeetCode}
}
