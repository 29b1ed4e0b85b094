package tui

import "github.com/charmbracelet/bubbles/textinput"

// authView is the Gmail consent step. The loopback redirect usually finishes
// it on its own; pasting the code covers browsers on another machine.
func authView(url string, input textinput.Model) string {
	return headerStyle.Render("Authorize Gmail access") + "\n\n" +
		"Please open this URL in your browser to authenticate:\n\n" +
		url + "\n\n" +
		"If the browser cannot redirect back, paste the code or the redirect URL:\n\n" +
		input.View() + "\n" +
		footerStyle.Render("enter: submit • ctrl+c: quit")
}

// loginView is shown when the inbox backend rejects the session.
func loginView(url string) string {
	return headerStyle.Render("Sign-in required") + "\n\n" +
		"The inbox backend needs you to sign in again:\n\n" +
		url + "\n" +
		footerStyle.Render("o: open in browser • enter: retry • q: quit")
}
