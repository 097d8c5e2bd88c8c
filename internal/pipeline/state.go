package pipeline

// State names the pipeline's position in its strictly linear sequence.
// There is no branching besides failure and no transition backwards;
// re-running the whole process is the only recovery path.
type State string

const (
	StateStart         State = "start"
	StateAuthenticated State = "authenticated"
	StateFetched       State = "fetched"
	StateConfigured    State = "configured"
	StateAppBuilt      State = "app-built"
	StateImageBuilt    State = "image-built"
	StatePushed        State = "pushed"
	StateSignaled      State = "signaled"
	StateIdling        State = "idling"
	StateAborted       State = "aborted"
)
