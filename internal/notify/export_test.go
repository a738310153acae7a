package notify

// SetSendMail replaces the SMTP transport in tests.
func SetSendMail(n *EmailNotifier, send SendMailFunc) {
	n.send = send
}
