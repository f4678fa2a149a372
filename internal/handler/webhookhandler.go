package handler

import (
	"encoding/xml"
	"net/http"
	"strings"

	"github.com/deskhelp/deskbot/internal/logging"
	"github.com/deskhelp/deskbot/internal/svc"
)

// twiml is the Twilio messaging response envelope.
type twiml struct {
	XMLName xml.Name `xml:"Response"`
	Message string   `xml:"Message"`
}

// WebhookHandler receives Twilio WhatsApp form posts and replies with TwiML.
// The reply is produced synchronously; Twilio delivers whatever text we put
// in the Message element.
func WebhookHandler(svcCtx *svc.ServiceContext) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			http.Error(w, "bad form", http.StatusBadRequest)
			return
		}
		body := r.PostFormValue("Body")
		from := strings.TrimPrefix(r.PostFormValue("From"), "whatsapp:")
		name := r.PostFormValue("ProfileName")
		if from == "" {
			http.Error(w, "missing sender", http.StatusBadRequest)
			return
		}

		reply := svcCtx.Engine.HandleInbound(from, body, name)

		w.Header().Set("Content-Type", "text/xml; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(xml.Header))
		if err := xml.NewEncoder(w).Encode(twiml{Message: reply}); err != nil {
			logging.Errorf("encode twiml: %v", err)
		}
	}
}
