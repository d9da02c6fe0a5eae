package welcomer

import (
	"fmt"
	"html/template"
	"strings"

	"github.com/NordCoder/Welcomer/internal/domain/membership"
)

const (
	DefaultBackgroundURL = "https://i.imgur.com/CUAVXwI.png"

	subWelcome = "We are happy to welcome you! Enjoy your time with us."
	subBye     = "It is a pity that you are leaving us. We hope you will come back to us again someday."
)

var cardTmpl = template.Must(template.New("card").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="UTF-8">
<meta name="viewport" content="width=device-width, initial-scale=1.0">
<title>{{.Heading}}</title>
<link href="https://fonts.googleapis.com/css2?family=Roboto:wght@300;400;700&display=swap" rel="stylesheet">
<style>
body {
	font-family: 'Roboto', sans-serif;
	margin: 0;
	padding: 0;
	background-image: url('{{.Background}}');
	background-size: cover;
	background-position: center;
	width: {{.Width}}px;
	height: {{.Height}}px;
	display: flex;
	justify-content: center;
	align-items: center;
	overflow: hidden;
}
.container { text-align: center; padding: 40px; border-radius: 10px; width: 90%; max-width: 600px; }
.avatar { width: 175px; height: 175px; border-radius: 50%; margin-bottom: 30px; }
.message { font-size: 46px; font-weight: 700; color: #fff; }
.sub-message { font-size: 16px; margin-top: 15px; color: #ddd; font-weight: 300; }
</style>
</head>
<body>
<div class="container">
<img src="{{.AvatarURL}}" alt="Avatar" class="avatar">
<div class="message">{{.Heading}}, {{.Name}}</div>
<div class="sub-message">{{.Sub}}</div>
</div>
</body>
</html>
`))

// Composer turns a membership event into a card document. It is a value
// type with no I/O; equal inputs give byte-identical documents.
type Composer struct {
	BackgroundURL string
	Width         int
	Height        int
}

func NewComposer(backgroundURL string, width, height int) Composer {
	if backgroundURL == "" {
		backgroundURL = DefaultBackgroundURL
	}
	if width <= 0 || height <= 0 {
		width, height = membership.CardWidth, membership.CardHeight
	}
	return Composer{BackgroundURL: backgroundURL, Width: width, Height: height}
}

type cardView struct {
	Heading    string
	Name       string
	Sub        string
	AvatarURL  string
	Background string
	Width      int
	Height     int
}

func (c Composer) Compose(kind membership.Kind, displayName, avatarURL string) (membership.CardDocument, error) {
	if !kind.Valid() {
		return membership.CardDocument{}, &membership.CompositionError{Err: fmt.Errorf("%w: %q", membership.ErrInvalidKind, kind)}
	}

	v := cardView{
		Heading:    "Welcome",
		Sub:        subWelcome,
		Name:       displayName,
		AvatarURL:  avatarURL,
		Background: c.BackgroundURL,
		Width:      c.Width,
		Height:     c.Height,
	}
	if kind == membership.KindLeave {
		v.Heading, v.Sub = "Bye", subBye
	}

	var sb strings.Builder
	if err := cardTmpl.Execute(&sb, v); err != nil {
		return membership.CardDocument{}, &membership.CompositionError{Err: err}
	}
	return membership.CardDocument{HTML: sb.String(), Width: c.Width, Height: c.Height}, nil
}
