package http

import (
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/quizforge/quizforge/internal/bank"
	"github.com/quizforge/quizforge/internal/engine"
	"github.com/quizforge/quizforge/internal/progress"
)

// Routes mounts the full command surface. Engine no-ops (out-of-range
// index, frozen answer, unknown id) return the fresh state with 200;
// the UI is expected to issue valid commands but nothing breaks when
// it does not.
func (m *Manager) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/banks", m.listBanksHandler())
	r.Post("/banks/folders", m.addFolderHandler())
	r.Delete("/banks/folders", m.removeFolderHandler())

	r.Post("/sessions", m.openSessionHandler())
	r.Route("/sessions/{sessionID}", func(sr chi.Router) {
		sr.Delete("/", m.closeSessionHandler())
		sr.Get("/state", m.stateHandler())
		sr.Post("/load", m.loadHandler())
		sr.Get("/topics", m.topicsHandler())
		sr.Get("/meta", m.metaHandler())
		sr.Get("/questions/current", m.currentDetailHandler())
		sr.Post("/select", m.selectHandler())
		sr.Post("/submit", m.submitHandler())
		sr.Post("/next", m.navHandler(func(s *session, r *http.Request) { s.engine.GoNext(r.Context()) }))
		sr.Post("/prev", m.navHandler(func(s *session, r *http.Request) { s.engine.GoPrev(r.Context()) }))
		sr.Post("/goto", m.gotoHandler())
		sr.Post("/exam/start", m.startExamHandler())
		sr.Post("/exam/end", m.endExamHandler())
		sr.Get("/exam/result", m.examResultHandler())
		sr.Post("/progress/reset", m.resetProgressHandler())
		sr.Get("/progress/export", m.exportProgressHandler())
		sr.Post("/progress/import", m.importProgressHandler())
		sr.Get("/events", m.eventsHandler())
		sr.Get("/assets/*", m.assetHandler())
	})
	return r
}

func (m *Manager) listBanksHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		banks := m.registry.Scan()
		if banks == nil {
			banks = []bank.Info{}
		}
		writeJSON(w, banks)
	}
}

func (m *Manager) addFolderHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Path string `json:"path"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Path == "" {
			http.Error(w, "path required", http.StatusBadRequest)
			return
		}
		if err := m.registry.AddFolder(req.Path); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(w, m.registry.Scan())
	}
}

func (m *Manager) removeFolderHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Path string `json:"path"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Path == "" {
			http.Error(w, "path required", http.StatusBadRequest)
			return
		}
		if err := m.registry.RemoveFolder(req.Path); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(w, m.registry.Scan())
	}
}

func (m *Manager) openSessionHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Path string `json:"path"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Path == "" {
			http.Error(w, "path required", http.StatusBadRequest)
			return
		}
		sess, err := m.OpenSession(req.Path)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		writeJSON(w, map[string]any{
			"id":    sess.id,
			"title": sess.bank.Title(r.Context()),
			"state": sess.engine.State(),
		})
	}
}

func (m *Manager) closeSessionHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := m.CloseSession(chi.URLParam(r, "sessionID")); err != nil {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func (m *Manager) stateHandler() http.HandlerFunc {
	return m.withSession(func(w http.ResponseWriter, r *http.Request, sess *session) {
		writeJSON(w, sess.engine.State())
	})
}

func (m *Manager) loadHandler() http.HandlerFunc {
	return m.withSession(func(w http.ResponseWriter, r *http.Request, sess *session) {
		var req struct {
			Filters bank.Filters `json:"filters"`
			Shuffle bool         `json:"shuffle"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad json", http.StatusBadRequest)
			return
		}
		if err := sess.engine.Load(r.Context(), req.Filters, req.Shuffle); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(w, sess.engine.State())
	})
}

func (m *Manager) topicsHandler() http.HandlerFunc {
	return m.withSession(func(w http.ResponseWriter, r *http.Request, sess *session) {
		topics, err := sess.bank.Topics(r.Context())
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		if topics == nil {
			topics = []string{}
		}
		writeJSON(w, topics)
	})
}

func (m *Manager) metaHandler() http.HandlerFunc {
	return m.withSession(func(w http.ResponseWriter, r *http.Request, sess *session) {
		meta, err := sess.bank.Meta(r.Context())
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(w, meta)
	})
}

func (m *Manager) currentDetailHandler() http.HandlerFunc {
	return m.withSession(func(w http.ResponseWriter, r *http.Request, sess *session) {
		detail, err := sess.engine.CurrentDetail(r.Context())
		if err != nil {
			if errors.Is(err, bank.ErrQuestionNotFound) {
				http.Error(w, err.Error(), http.StatusNotFound)
				return
			}
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(w, detail)
	})
}

func (m *Manager) selectHandler() http.HandlerFunc {
	return m.withSession(func(w http.ResponseWriter, r *http.Request, sess *session) {
		var req struct {
			QuestionID int64  `json:"question_id"`
			Label      string `json:"label"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad json", http.StatusBadRequest)
			return
		}
		sess.engine.SelectOption(r.Context(), req.QuestionID, req.Label)
		writeJSON(w, sess.engine.State())
	})
}

func (m *Manager) submitHandler() http.HandlerFunc {
	return m.withSession(func(w http.ResponseWriter, r *http.Request, sess *session) {
		var req struct {
			QuestionID int64 `json:"question_id"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad json", http.StatusBadRequest)
			return
		}
		detail, err := sess.bank.Question(r.Context(), req.QuestionID)
		if err != nil {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		answer, err := sess.engine.SubmitAnswer(r.Context(), req.QuestionID, detail.Options)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(w, map[string]any{
			"answer": answer, // null when nothing was selected
			"state":  sess.engine.State(),
		})
	})
}

func (m *Manager) navHandler(move func(*session, *http.Request)) http.HandlerFunc {
	return m.withSession(func(w http.ResponseWriter, r *http.Request, sess *session) {
		move(sess, r)
		writeJSON(w, sess.engine.State())
	})
}

func (m *Manager) gotoHandler() http.HandlerFunc {
	return m.withSession(func(w http.ResponseWriter, r *http.Request, sess *session) {
		var req struct {
			Index int `json:"index"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad json", http.StatusBadRequest)
			return
		}
		sess.engine.GoTo(r.Context(), req.Index)
		writeJSON(w, sess.engine.State())
	})
}

func (m *Manager) startExamHandler() http.HandlerFunc {
	return m.withSession(func(w http.ResponseWriter, r *http.Request, sess *session) {
		var req struct {
			Filters       bank.Filters `json:"filters"`
			TimeMinutes   int          `json:"time_minutes"`
			QuestionCount int          `json:"question_count"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad json", http.StatusBadRequest)
			return
		}
		onTick, onTimeUp := sess.hub.tickFuncs()
		err := sess.engine.StartExam(r.Context(), req.Filters, req.TimeMinutes, req.QuestionCount, onTick, onTimeUp)
		if err != nil {
			if errors.Is(err, engine.ErrNoQuestions) {
				http.Error(w, err.Error(), http.StatusConflict)
				return
			}
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(w, sess.engine.State())
	})
}

func (m *Manager) endExamHandler() http.HandlerFunc {
	return m.withSession(func(w http.ResponseWriter, r *http.Request, sess *session) {
		sess.engine.EndExam()
		writeJSON(w, sess.engine.State())
	})
}

func (m *Manager) examResultHandler() http.HandlerFunc {
	return m.withSession(func(w http.ResponseWriter, r *http.Request, sess *session) {
		result, ok := sess.engine.ExamResult()
		if !ok {
			http.Error(w, "no exam", http.StatusNotFound)
			return
		}
		writeJSON(w, result)
	})
}

func (m *Manager) resetProgressHandler() http.HandlerFunc {
	return m.withSession(func(w http.ResponseWriter, r *http.Request, sess *session) {
		if err := sess.engine.ResetProgress(r.Context()); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(w, sess.engine.State())
	})
}

func (m *Manager) exportProgressHandler() http.HandlerFunc {
	return m.withSession(func(w http.ResponseWriter, r *http.Request, sess *session) {
		doc, err := m.progress.ForBank(sess.bank.Path()).Export(r.Context())
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		stem := strings.TrimSuffix(filepath.Base(sess.bank.Path()), ".db")
		w.Header().Set("Content-Disposition", `attachment; filename="`+stem+`_progress.json"`)
		writeJSON(w, doc)
	})
}

func (m *Manager) importProgressHandler() http.HandlerFunc {
	return m.withSession(func(w http.ResponseWriter, r *http.Request, sess *session) {
		var doc progress.ExportDoc
		if err := json.NewDecoder(r.Body).Decode(&doc); err != nil || doc.Progress == nil {
			http.Error(w, "invalid progress format", http.StatusBadRequest)
			return
		}
		if err := m.progress.ForBank(sess.bank.Path()).Import(r.Context(), doc); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		// the engine's aggregate is stale until the next load or submit
		writeJSON(w, sess.engine.State())
	})
}

func (m *Manager) assetHandler() http.HandlerFunc {
	return m.withSession(func(w http.ResponseWriter, r *http.Request, sess *session) {
		key := strings.TrimPrefix(chi.URLParam(r, "*"), "/")
		rc, err := sess.media.Open(key)
		if err != nil {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		defer rc.Close()
		if ct := mime.TypeByExtension(filepath.Ext(key)); ct != "" {
			w.Header().Set("Content-Type", ct)
		} else {
			w.Header().Set("Content-Type", "application/octet-stream")
		}
		_, _ = io.Copy(w, rc)
	})
}

func (m *Manager) withSession(h func(http.ResponseWriter, *http.Request, *session)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, err := m.get(chi.URLParam(r, "sessionID"))
		if err != nil {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		h(w, r, sess)
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
