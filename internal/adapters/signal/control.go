package signal

import (
	"github.com/rs/zerolog/log"

	"github.com/neutron420/bloom/internal/core"
	"github.com/neutron420/bloom/internal/domain"
	"github.com/neutron420/bloom/internal/protocol"
)

// replyError sends err to the originating connection only.
func (ctl *SignalWSController) replyError(id core.ConnID, reqID string, err error) {
	code := domain.Code(err)
	ev := log.Debug()
	if code == domain.CodeInternal {
		ev = log.Error()
	}
	ev.Err(err).Str("module", "signal").Str("conn", string(id)).Str("req", reqID).Str("code", code).Msg("request failed")
	ctl.Orch.Notify.ConnID(id, protocol.Error(reqID, err))
}
