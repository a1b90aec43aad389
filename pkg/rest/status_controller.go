package rest

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/inbucket/aliasrelay/pkg/extension/event"
	"github.com/inbucket/aliasrelay/pkg/relay"
	"github.com/inbucket/aliasrelay/pkg/rest/model"
	"github.com/inbucket/aliasrelay/pkg/server/web"
	"github.com/inbucket/aliasrelay/pkg/storage"
	"github.com/rs/zerolog/log"
)

// StatusV1 renders the last backlog scan and the recent dispositions, newest first.
func StatusV1(w http.ResponseWriter, req *http.Request, ctx *web.Context) (err error) {
	status := &model.JSONStatusV1{Recent: make([]model.JSONDispositionV1, 0)}
	if ctx.Backlog != nil {
		b := ctx.Backlog.Last()
		status.Backlog = model.JSONBacklogV1{
			Staged:      b.Staged,
			Quarantined: b.Quarantined,
			Orphaned:    b.Orphaned,
			Completed:   b.Completed,
		}
	}
	if ctx.MsgHub != nil {
		for _, d := range ctx.MsgHub.Recent() {
			status.Recent = append(status.Recent, jsonDisposition(d))
		}
	}

	return web.RenderJSON(w, status)
}

// StagedListV1 renders the messages present in the staging store.  The quarantined query
// parameter restricts the list to (or excludes) quarantined messages.
func StagedListV1(w http.ResponseWriter, req *http.Request, ctx *web.Context) (err error) {
	var filter *bool
	if q := req.URL.Query().Get("quarantined"); q != "" {
		b, err := strconv.ParseBool(q)
		if err != nil {
			http.Error(w, fmt.Sprintf("Invalid quarantined value: %q", q), http.StatusBadRequest)
			return nil
		}
		filter = &b
	}

	entries := make([]*model.JSONEntryV1, 0)
	err = ctx.Store.Visit(func(e storage.Entry) bool {
		if filter != nil && e.Quarantined != *filter {
			return true
		}
		entries = append(entries, jsonEntry(ctx.Store, e))
		return true
	})
	if err != nil {
		// This doesn't indicate empty, likely an IO error.
		return fmt.Errorf("failed to list staging store: %w", err)
	}

	return web.RenderJSON(w, entries)
}

// StagedShowV1 renders a single staged message, including its quarantine marker.
func StagedShowV1(w http.ResponseWriter, req *http.Request, ctx *web.Context) (err error) {
	// Don't have to validate these aren't empty, Gorilla returns 404.
	id := ctx.Vars["id"]
	var found *model.JSONEntryV1
	err = ctx.Store.Visit(func(e storage.Entry) bool {
		if e.ID == id {
			found = jsonEntry(ctx.Store, e)
			return false
		}
		return true
	})
	if err != nil {
		return fmt.Errorf("failed to search staging store for %q: %w", id, err)
	}
	if found == nil {
		http.NotFound(w, req)
		return nil
	}

	return web.RenderJSON(w, found)
}

func jsonEntry(store storage.Store, e storage.Entry) *model.JSONEntryV1 {
	je := &model.JSONEntryV1{
		ID:          e.ID,
		Size:        e.Size,
		Staged:      e.Staged,
		Quarantined: e.Quarantined,
	}
	if !e.Quarantined {
		return je
	}

	b, err := store.ErrorMarker(e.Path)
	if err != nil {
		log.Warn().Str("module", "web").Str("path", e.Path).Err(err).Msg("Failed to read marker")
		return je
	}
	m, err := relay.DecodeMarker(b)
	if err != nil {
		log.Warn().Str("module", "web").Str("path", e.Path).Err(err).Msg("Failed to decode marker")
		return je
	}
	je.Marker = &model.JSONMarkerV1{
		AliasID:    m.AliasID,
		RawAddress: m.RawAddress,
		Stage:      m.Stage,
		Reason:     m.Reason,
		Time:       m.Time,
	}

	return je
}

func jsonDisposition(d event.Disposition) model.JSONDispositionV1 {
	return model.JSONDispositionV1{
		ID:             d.ID,
		AliasID:        d.AliasID,
		Outcome:        d.Outcome,
		Stage:          d.Stage,
		From:           d.From,
		Subject:        d.Subject,
		ForwardAddress: d.ForwardAddress,
		MessageID:      d.MessageID,
		ConfirmURL:     d.ConfirmURL,
		Error:          d.Error,
		Date:           d.Date,
	}
}
