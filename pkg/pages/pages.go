// Package pages renders the few HTML pages served around login.
package pages

import (
	. "maragu.dev/gomponents"
	. "maragu.dev/gomponents/html"

	"swipify/pkg/user"
)

const styles = `
	body {
		font-family: Arial, sans-serif;
		max-width: 600px;
		margin: 50px auto;
		padding: 20px;
		text-align: center;
		background: #121212;
		color: #eee;
	}
	h1 { color: #fff; }
	p { color: #b3b3b3; font-size: 18px; }
	.success { color: #1db954; font-size: 48px; margin-bottom: 20px; }
	.error { color: #e22134; font-size: 48px; margin-bottom: 20px; }
	.button {
		display: inline-block;
		margin-top: 24px;
		padding: 12px 32px;
		border: none;
		border-radius: 24px;
		background: #1db954;
		color: #000;
		font-size: 16px;
		text-decoration: none;
		cursor: pointer;
	}
	.avatar { width: 96px; height: 96px; border-radius: 50%; }
`

func page(title string, body ...Node) Node {
	return Doctype(
		HTML(
			Lang("en"),
			Head(
				Meta(Charset("UTF-8")),
				Meta(Name("viewport"), Content("width=device-width, initial-scale=1")),
				TitleEl(Text(title)),
				StyleEl(Raw(styles)),
			),
			Body(body...),
		),
	)
}

// Landing is the home page. u is nil for anonymous visitors.
func Landing(u *user.User, providerLabel string) Node {
	if u == nil {
		return page("Swipify",
			H1(Text("Swipify")),
			P(Text("Swipe through music picked from your listening history.")),
			A(Class("button"), Href("/login"), Text("Log in with "+providerLabel)),
		)
	}

	return page("Swipify",
		If(u.AvatarURL != "", Img(Class("avatar"), Src(u.AvatarURL), Alt(u.DisplayName))),
		H1(Text("Hi, "+u.DisplayName)),
		P(Text("You are logged in.")),
		Form(Method("post"), Action("/logout"),
			Button(Class("button"), Type("submit"), Text("Log out")),
		),
	)
}

// AuthError is shown after a failed login. message must already be safe
// to display; callers never pass provider payloads.
func AuthError(message, retryURL string) Node {
	return page("Authentication failed",
		Div(Class("error"), Text("✕")),
		H1(Text("Authentication failed, please try again")),
		P(Text(message)),
		A(Class("button"), Href(retryURL), Text("Try again")),
	)
}

// LoopbackSuccess is shown by the command line login's local callback.
func LoopbackSuccess() Node {
	return page("Authentication Successful",
		Script(Raw(`setTimeout(function() { window.close(); }, 5000);`)),
		Div(Class("success"), Text("✓")),
		H1(Text("Authentication Successful!")),
		P(Text("You can close this window and return to your terminal.")),
	)
}
