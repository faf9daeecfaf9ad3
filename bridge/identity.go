package bridge

import (
	"sync"

	"github.com/GriffinCanCode/AgentOS/browserworker/internal/shared/id"
	"github.com/GriffinCanCode/AgentOS/browserworker/page"
)

// Page-global name prefixes, suffixed with the worker identity
const (
	workerKeyPrefix      = "__browserWorker_"
	messageBindingPrefix = "__browserWorkerMessage_"
	errorBindingPrefix   = "__browserWorkerError_"
)

// names are the page-global names one worker owns
type names struct {
	worker  string
	message string
	error   string
}

func namesFor(wid id.WorkerID) names {
	s := wid.String()
	return names{
		worker:  workerKeyPrefix + s,
		message: messageBindingPrefix + s,
		error:   errorBindingPrefix + s,
	}
}

type claimKey struct {
	page page.Page
	id   id.WorkerID
}

// claims tracks live identities per page. Pages must be comparable, which
// every adapter satisfies by being a pointer. An entry lives until the worker
// is terminated or a page call reports page.ErrClosed; a worker that is
// abandoned on an open page keeps its page reachable until Terminate.
var claims sync.Map // claimKey -> struct{}

func claim(p page.Page, wid id.WorkerID) error {
	if _, loaded := claims.LoadOrStore(claimKey{page: p, id: wid}, struct{}{}); loaded {
		return ErrIdentityInUse
	}
	return nil
}

func release(p page.Page, wid id.WorkerID) {
	claims.Delete(claimKey{page: p, id: wid})
}
