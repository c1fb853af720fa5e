/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"fmt"
	"html"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/julienschmidt/httprouter"

	"github.com/Seednode/partyroom/room"
)

var homeGames = []struct {
	game room.Game
	blurb string
}{
	{room.Liar, "Everyone but the impostor knows the secret word. Give a hint, find the impostor."},
	{room.Mafia, "Eliminators strike at night; the town votes by day."},
}

func homePage(cfg *Config, live int) string {
	var body strings.Builder

	body.WriteString(`<!DOCTYPE html><html lang="en"><head>`)
	body.WriteString(`<meta charset="utf-8"><meta name="viewport" content="width=device-width, initial-scale=1">`)
	body.WriteString(`<title>partyroom</title></head><body><h1>partyroom</h1><ul>`)
	for _, g := range homeGames {
		body.WriteString(fmt.Sprintf(`<li><a href="%s/%s">%s</a>: %s</li>`,
			html.EscapeString(cfg.prefix), g.game, g.game, html.EscapeString(g.blurb)))
	}
	body.WriteString(`</ul>`)
	body.WriteString(fmt.Sprintf(`<p>%d active room(s)</p>`, live))
	body.WriteString(`</body></html>`)

	return body.String()
}

func serveHomePage(cfg *Config, m *RoomManager, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		startTime := time.Now()

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		securityHeaders(cfg, w)

		written, err := w.Write([]byte(homePage(cfg, m.live())))
		if err != nil {
			errs <- err

			return
		}

		logf(cfg, "SERVE: Home page (%s) to %s in %s",
			humanReadableSize(int64(written)),
			realIP(r),
			time.Since(startTime).Round(time.Microsecond),
		)
	}
}

func serveHealthCheck(cfg *Config, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		securityHeaders(cfg, w)

		_, err := w.Write([]byte("Ok\n"))
		if err != nil {
			errs <- err

			return
		}
	}
}

func serveRobots(cfg *Config, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		data := `User-agent: *
Disallow: /liar/
Disallow: /mafia/

User-agent: GPTBot
Disallow: /

User-agent: CCBot
Disallow: /`

		w.Header().Set("Cache-Control", "public, max-age=3600")
		w.Header().Set("Expires", time.Now().Add(time.Hour).UTC().Format(http.TimeFormat))
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Header().Set("Content-Length", strconv.Itoa(len(data)))
		securityHeaders(cfg, w)

		_, err := w.Write([]byte(data))
		if err != nil {
			errs <- err

			return
		}
	}
}
