// Package admin exposes content lists and editing sessions over a JSON API.
package admin

import "github.com/rs/zerolog"

var adminLogger zerolog.Logger

func SetLogger(l zerolog.Logger) {
	adminLogger = l
}
