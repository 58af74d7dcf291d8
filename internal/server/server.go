package server

import (
	"context"
	"encoding/json"
	"log"
	"net/http"

	"github.com/gorilla/websocket"
)

// ChatService answers one user message for a session.
type ChatService interface {
	HandleMessage(ctx context.Context, sessionID, userText string, fundContext map[string]any) (string, error)
}

// Merger merges prediction oracle output into a fund record.
type Merger interface {
	Merge(ctx context.Context, record map[string]any) (map[string]any, error)
}

// SchemeSource serves sampled fund records.
type SchemeSource interface {
	TopSchemes(limit int) ([]map[string]string, error)
}

// Server exposes the asset-chat websocket endpoint and the prediction and
// fund-list HTTP endpoints.
type Server struct {
	mux         *http.ServeMux
	upgrader    websocket.Upgrader
	chat        ChatService
	predict     Merger
	funds       SchemeSource
	sampleLimit int
}

// New creates a Server and registers its routes.
func New(chat ChatService, predict Merger, funds SchemeSource, sampleLimit int) *Server {
	s := &Server{
		mux:         http.NewServeMux(),
		upgrader:    websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }},
		chat:        chat,
		predict:     predict,
		funds:       funds,
		sampleLimit: sampleLimit,
	}
	s.mux.HandleFunc("GET /asset-chat/{session_id}", s.handleAssetChat)
	s.mux.HandleFunc("POST /predict-returns", s.handlePredictReturns)
	s.mux.HandleFunc("GET /top-schemes", s.handleTopSchemes)
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// chatPayload is one inbound message on the asset-chat channel.
type chatPayload struct {
	Text    string         `json:"text"`
	Context map[string]any `json:"context,omitempty"`
}

func (s *Server) handleAssetChat(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("session_id")

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[server] websocket upgrade failed for session %s: %v", sessionID, err)
		return
	}
	defer conn.Close()

	// One message handled at a time per connection: the next frame is only
	// read after the previous one is fully answered. Calls run on a context
	// detached from the connection so a disconnect mid-call lets the call
	// finish and the result is simply discarded.
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			log.Printf("[server] session %s disconnected: %v", sessionID, err)
			return
		}

		var payload chatPayload
		if err := json.Unmarshal(raw, &payload); err != nil {
			if werr := conn.WriteMessage(websocket.TextMessage, []byte("Error: invalid payload")); werr != nil {
				return
			}
			continue
		}

		reply, err := s.chat.HandleMessage(context.Background(), sessionID, payload.Text, payload.Context)
		if err != nil {
			log.Printf("[server] session %s: %v", sessionID, err)
			if reply == "" {
				reply = "Error: " + err.Error()
			}
		}
		if err := conn.WriteMessage(websocket.TextMessage, []byte(reply)); err != nil {
			return
		}
	}
}

// fundRecord is the typed prediction request body.
type fundRecord struct {
	SchemeName   string  `json:"scheme_name"`
	MinSIP       float64 `json:"min_sip"`
	MinLumpsum   float64 `json:"min_lumpsum"`
	ExpenseRatio float64 `json:"expense_ratio"`
	FundSizeCr   float64 `json:"fund_size_cr"`
	FundAgeYr    int     `json:"fund_age_yr"`
	FundManager  string  `json:"fund_manager"`
	Sortino      string  `json:"sortino"`
	Alpha        string  `json:"alpha"`
	SD           string  `json:"sd"`
	Beta         string  `json:"beta"`
	Sharpe       string  `json:"sharpe"`
	RiskLevel    int     `json:"risk_level"`
	AMCName      string  `json:"amc_name"`
	Rating       int     `json:"rating"`
	Category     string  `json:"category"`
	SubCategory  string  `json:"sub_category"`
	SchemeCode   int     `json:"scheme_code"`
}

func (s *Server) handlePredictReturns(w http.ResponseWriter, r *http.Request) {
	var record fundRecord
	if err := json.NewDecoder(r.Body).Decode(&record); err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, "invalid request body: "+err.Error())
		return
	}
	if record.SchemeName == "" {
		writeDetail(w, http.StatusUnprocessableEntity, "scheme_name is required")
		return
	}
	if record.SchemeCode <= 0 {
		writeDetail(w, http.StatusUnprocessableEntity, "scheme_code is required")
		return
	}

	// Round-trip through JSON so the oracle sees the same field names the
	// client sent.
	data, err := json.Marshal(record)
	if err != nil {
		writeDetail(w, http.StatusInternalServerError, err.Error())
		return
	}
	var asMap map[string]any
	if err := json.Unmarshal(data, &asMap); err != nil {
		writeDetail(w, http.StatusInternalServerError, err.Error())
		return
	}

	merged, err := s.predict.Merge(r.Context(), asMap)
	if err != nil {
		log.Printf("[server] prediction merge failed: %v", err)
		writeDetail(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, merged)
}

func (s *Server) handleTopSchemes(w http.ResponseWriter, r *http.Request) {
	records, err := s.funds.TopSchemes(s.sampleLimit)
	if err != nil {
		log.Printf("[server] top schemes failed: %v", err)
		writeDetail(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, records)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[server] failed to write response: %v", err)
	}
}

func writeDetail(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}
