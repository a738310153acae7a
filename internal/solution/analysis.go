package solution

import (
	"net/url"
	"strings"

	"cpcal/internal/model"
)

const chatGPTBase = "https://chatgpt.com/?q="

const analysisTemplate = `Analyze the %CONTEST%, delivering a focused breakdown of problem-solving strategies and actionable learning. Structure your response as follows:

**1. Problem Breakdown (Summarized & Categorized):**

* Categorize the contest problems by core algorithmic concepts (e.g., Graph Theory, Dynamic Programming, String Manipulation, Combinatorics, Simulation).
* For each category, concisely summarize the problem type and provide a representative example.
* Identify the key constraints and challenges that contributed to the problem's difficulty.

**2. Solution Strategies & Best Approaches:**

* For each problem type, detail the most effective solution approaches.
* List the essential algorithms and data structures utilized (e.g., Trie, DFS/BFS, Two Pointers, Backtracking, Hashing).
* Explain the time and space complexity of each solution, justifying its optimality.
* Provide clear, concise code snippets or pseudocode to illustrate the implementation of these solutions.
* Provide links to youtube videos that explain the approaches.

**3. Key Learnings & Takeaways:**

* Extract the core problem-solving techniques that participants can learn and apply.
* Demonstrate how these learned concepts translate to other coding contests and real-world scenarios.
* Identify common mistakes made during the contest and offer strategies to avoid them.
* Highlight effective code optimization techniques and debugging methodologies employed.

**4. Learning Resources & Practice:**

* Provide links to relevant and insightful video solutions on YouTube.
* Recommend articles or blog posts for in-depth exploration of the concepts.
* Suggest similar practice problems on LeetCode or Codeforces to reinforce the learned skills.

Deliver a structured, concise, and actionable analysis that caters to both beginner and advanced problem solvers. 🚀`

// AnalysisPrompt asks for a structured post-contest breakdown of
// "{platform} {title}".
func AnalysisPrompt(c model.Contest) string {
	return strings.Replace(analysisTemplate, "%CONTEST%", c.Platform+" "+c.Title, 1)
}

// AnalysisURL opens ChatGPT with AnalysisPrompt prefilled.
func AnalysisURL(c model.Contest) string {
	return chatGPTBase + encodeURIComponent(AnalysisPrompt(c))
}

// componentSafe are the characters a browser's encodeURIComponent leaves
// as-is but url.QueryEscape escapes.
var componentSafe = strings.NewReplacer(
	"+", "%20",
	"%21", "!",
	"%27", "'",
	"%28", "(",
	"%29", ")",
	"%2A", "*",
)

func encodeURIComponent(s string) string {
	return componentSafe.Replace(url.QueryEscape(s))
}
