/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"bytes"
	"context"
	_ "embed"
	"errors"
	"fmt"
	"html"
	"net/http"
	"strconv"
	"time"

	"github.com/julienschmidt/httprouter"
)

//go:embed client/index.html
var indexHTML []byte

//go:embed client/app.css
var clientCSS []byte

//go:embed client/app.js
var clientJS []byte

// clientPage fills the route prefix into the index page.
func clientPage(cfg *Config) []byte {
	return bytes.ReplaceAll(indexHTML, []byte("{{prefix}}"), []byte(html.EscapeString(cfg.prefix)))
}

func writeClientPage(cfg *Config, w http.ResponseWriter, r *http.Request, page []byte, startTime time.Time, errs chan<- error) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Content-Length", strconv.Itoa(len(page)))
	w.Header().Set("Cache-Control", "no-cache")
	securityHeaders(cfg, w)

	written, err := w.Write(page)
	if err != nil {
		errs <- err

		return
	}

	logf(cfg, "SERVE: Client page %s (%s) to %s in %s",
		r.URL.Path,
		humanReadableSize(int64(written)),
		realIP(r),
		time.Since(startTime).Round(time.Microsecond),
	)
}

func getIndexHandler(cfg *Config, page []byte, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		writeClientPage(cfg, w, r, page, time.Now(), errs)
	}
}

// getRoomHandler serves the client for an existing room and a 404 page
// otherwise.
func getRoomHandler(a *arena, page []byte, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		startTime := time.Now()

		ctx, cancel := context.WithTimeout(r.Context(), a.cfg.requestTimeout)
		defer cancel()

		_, err := a.lobby.GetRoom(ctx, p.ByName("code"))
		switch {
		case errors.Is(err, ErrNotFound):
			writePage(a.cfg, w, r, http.StatusNotFound, "Room Not Found",
				fmt.Sprintf(`<p>That room does not exist. <a href="%s/">Back to the lobby</a></p>`, html.EscapeString(a.cfg.prefix)),
				startTime, errs)
			return
		case err != nil:
			logErr(fmt.Errorf("room page: %w", err))
			writePage(a.cfg, w, r, http.StatusInternalServerError, "Server Error", "<p>An error has occurred. Please try again.</p>", startTime, errs)
			return
		}

		writeClientPage(a.cfg, w, r, page, startTime, errs)
	}
}

func getAssetHandler(cfg *Config, contentType string, data []byte) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		w.Header().Set("Content-Type", contentType)
		w.Header().Set("Cache-Control", "public, max-age=3600")
		w.Header().Set("Expires", time.Now().Add(time.Hour).UTC().Format(http.TimeFormat))
		securityHeaders(cfg, w)

		_, _ = w.Write(data)
	}
}

// registerClient sets up routes so that:
//   - /             → sign-in and dashboard
//   - /room/:code   → lobby for that room
//   - /assets/*     → shared stylesheet and script
func registerClient(a *arena, mux *httprouter.Router, errs chan<- error) {
	page := clientPage(a.cfg)

	mux.GET(a.cfg.prefix+"/", getIndexHandler(a.cfg, page, errs))
	mux.GET(a.cfg.prefix+"/room/:code", getRoomHandler(a, page, errs))

	mux.GET(a.cfg.prefix+"/assets/app.css", getAssetHandler(a.cfg, "text/css; charset=utf-8", clientCSS))
	mux.GET(a.cfg.prefix+"/assets/app.js", getAssetHandler(a.cfg, "application/javascript; charset=utf-8", clientJS))
}
