package tasks

import (
	"github.com/hbdev/hbd-cli/pkg/entity"
	breverrors "github.com/hbdev/hbd-cli/pkg/errors"
	log "github.com/sirupsen/logrus"
)

type AgentEnsurer interface {
	EnsureAgent() (*entity.AgentHandle, error)
}

// AgentKeepalive re-verifies the persisted ssh-agent on a schedule so the
// decrypted key stays loaded between fleet invocations.
type AgentKeepalive struct {
	Ensurer AgentEnsurer
}

var _ Task = AgentKeepalive{}

func (k AgentKeepalive) Run() error {
	handle, err := k.Ensurer.EnsureAgent()
	if err != nil {
		return breverrors.WrapAndTrace(err)
	}
	log.WithFields(log.Fields{
		"pid":         handle.PID,
		"fingerprint": handle.Fingerprint,
	}).Debug("ssh-agent verified")
	return nil
}

func (k AgentKeepalive) GetTaskSpec() TaskSpec {
	return TaskSpec{
		Cron:               "@every 5m",
		RunCronImmediately: true,
	}
}
