package shared

import "context"

// Actor identifies the warehouse user (or system component) performing an
// operation. It is supplied explicitly on every core call by the session
// layer; the core never reads ambient authentication state.
type Actor struct {
	ID   int64
	Name string
	// QCAuthority allows approving/rejecting documents in QC and setting
	// the duplicate-serial override.
	QCAuthority bool
	// System marks internal callers such as the posting coordinator.
	// Posted/post-failed transitions are reserved for system actors.
	System bool
}

// SystemActor is used by background components acting on their own behalf.
var SystemActor = Actor{ID: 0, Name: "system", System: true}

type actorContextKey struct{}

// ContextWithActor stores the actor in context.
func ContextWithActor(ctx context.Context, actor Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

// ActorFromContext extracts the actor from context.
func ActorFromContext(ctx context.Context) (Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(Actor)
	return actor, ok
}
