package sweep

import (
	"fmt"
	"net/http"
	"strings"

	"tailscale.com/tsweb"

	"github.com/banshee-data/sonar/internal/httputil"
	"github.com/banshee-data/sonar/internal/protocol"
)

// ParseCommand maps the short operator words accepted by the debug routes
// to commands.
func ParseCommand(word string) (protocol.Command, error) {
	switch strings.ToLower(strings.TrimSpace(word)) {
	case "start":
		return protocol.SetOperation{Status: protocol.StatusStart}, nil
	case "stop":
		return protocol.SetOperation{Status: protocol.StatusStop}, nil
	case "wide":
		return protocol.SetFieldOfView{FieldOfView: protocol.FieldOfViewWide}, nil
	case "narrow":
		return protocol.SetFieldOfView{FieldOfView: protocol.FieldOfViewNarrow}, nil
	case "reset":
		return protocol.Reset{}, nil
	case "":
		return nil, fmt.Errorf("missing command")
	default:
		return nil, fmt.Errorf("unknown command %q: expected start, stop, wide, narrow or reset", word)
	}
}

// AttachAdminRoutes attaches debugging endpoints to the given HTTP mux
// served at /debug/. Commands posted here go through the same mailbox as
// the operator's, so they are applied in order on the sweep goroutine.
func (c *Controller) AttachAdminRoutes(mux *http.ServeMux) {
	debug := tsweb.Debugger(mux)

	debug.HandleFunc("sweep", "current sweep state and counters", func(w http.ResponseWriter, r *http.Request) {
		if !httputil.AllowMethod(w, r, http.MethodGet) {
			return
		}
		httputil.JSON(w, http.StatusOK, c.Snapshot())
	})

	debug.HandleSilentFunc("send-command-api", func(w http.ResponseWriter, r *http.Request) {
		if !httputil.AllowMethod(w, r, http.MethodPost) {
			return
		}
		cmd, err := ParseCommand(r.FormValue("command"))
		if err != nil {
			httputil.Errorf(w, http.StatusBadRequest, "%v", err)
			return
		}
		c.Submit(cmd)
		c.logf("debug route queued %v", cmd)
		httputil.JSON(w, http.StatusAccepted, map[string]string{"queued": cmd.String()})
	})
}
