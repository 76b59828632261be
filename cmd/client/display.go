package main

import (
	"io"
	"time"

	"github.com/erilali/bombnet/internal/message"
	"github.com/fatih/color"
)

type Display struct {
	out io.Writer

	serverColor  *color.Color
	gameColor    *color.Color
	objectColor  *color.Color
	scoreColor   *color.Color
	playerColor  *color.Color
	warningColor *color.Color
}

// NewDisplay writes coloured lines to out.
func NewDisplay(out io.Writer) *Display {
	return &Display{
		out:          out,
		serverColor:  color.New(color.FgCyan, color.Bold),
		gameColor:    color.New(color.FgYellow, color.Bold),
		objectColor:  color.New(color.FgWhite),
		scoreColor:   color.New(color.FgGreen, color.Bold),
		playerColor:  color.New(color.FgMagenta, color.Bold),
		warningColor: color.New(color.FgRed),
	}
}

func (d *Display) colorFor(m message.Message) *color.Color {
	switch m.(type) {
	case message.GameStatus, message.GameTime:
		return d.gameColor
	case message.ScoreUpdated:
		return d.scoreColor
	case message.PlayerIdentity:
		return d.playerColor
	default:
		return d.objectColor
	}
}

// PrintMessage shows one message received from the server.
func (d *Display) PrintMessage(m message.Message) {
	timestamp := time.Now().Format("15:04:05")
	d.colorFor(m).Fprintf(d.out, "[%s] %s\n", timestamp, message.Encode(m))
}

func (d *Display) PrintServerStatus(text string) {
	timestamp := time.Now().Format("15:04:05")
	d.serverColor.Fprintf(d.out, "[%s] [SERVER] %s\n", timestamp, text)
}

func (d *Display) PrintWarning(text string) {
	d.warningColor.Fprintf(d.out, "[WARNING] %s\n", text)
}
