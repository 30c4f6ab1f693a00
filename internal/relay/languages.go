package relay

import (
	"encoding/json"
	"net/http"
)

// LanguagePair is the body of the per-session language endpoint
type LanguagePair struct {
	SessionID  string `json:"session_id"`
	SourceLang string `json:"source_lang"`
	TargetLang string `json:"target_lang"`
}

// LanguagesHandler reads (GET ?session_id=) or overrides (POST) the language
// pair of a live session. An override applies from the next full window.
func (r *Relay) LanguagesHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		var pair LanguagePair

		switch req.Method {
		case http.MethodGet:
			pair.SessionID = req.URL.Query().Get("session_id")
		case http.MethodPost:
			if err := json.NewDecoder(req.Body).Decode(&pair); err != nil {
				http.Error(w, "invalid JSON body", http.StatusBadRequest)
				return
			}
			if pair.SourceLang == "" || pair.TargetLang == "" {
				http.Error(w, "source_lang and target_lang are required", http.StatusBadRequest)
				return
			}
		default:
			w.Header().Set("Allow", "GET, POST")
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		sess, ok := r.registry.Get(pair.SessionID)
		if !ok {
			http.Error(w, "unknown session", http.StatusNotFound)
			return
		}

		if req.Method == http.MethodPost {
			sess.SetLanguages(pair.SourceLang, pair.TargetLang)
			sess.Logger.Info().
				Str("source_lang", pair.SourceLang).
				Str("target_lang", pair.TargetLang).
				Msg("Session languages changed")
		}
		pair.SourceLang, pair.TargetLang = sess.Languages()

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(pair); err != nil {
			r.logger.Error().Err(err).Msg("Failed to write languages response")
		}
	}
}
