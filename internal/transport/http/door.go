package http

import (
	"context"
	"log"
	"net/http"

	"github.com/jaonoctus/lndoor/internal/domain"
)

// DoorPoller is the minimal interface needed to answer the door
// controller.
type DoorPoller interface {
	PollDoor(ctx context.Context) (domain.DoorSignal, error)
}

// HandleDoorPoll returns an HTTP handler for the door controller's poll
// loop. The body is always "1" or "0" with status 200: the controller
// has no way to act on anything else, so failures read as closed.
func HandleDoorPoll(svc DoorPoller, logger *log.Logger) http.HandlerFunc {
	if logger == nil {
		logger = log.Default()
	}
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, codeMethodNotAllowed, "method not allowed")
			return
		}

		logger.Printf("open sesame request agent=%q", r.UserAgent())

		signal, err := svc.PollDoor(r.Context())
		if err != nil {
			logger.Printf("ERROR: poll door: %v", err)
			signal = domain.SignalClosed
		}
		if signal == domain.SignalOpen {
			logger.Printf("opening the door")
		}

		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(signal))
	}
}
