package engine

import (
	"sync"

	"github.com/rs/zerolog"
)

// DefaultGuardMessage is shown when a student tries to leave a live attempt.
const DefaultGuardMessage = "Ujian sedang berlangsung. Jawaban yang belum dikirim bisa hilang. Yakin ingin keluar?"

// NavigationGuard blocks page unloads and route changes while armed.
// Every interception is resolved by the user through the platform.
type NavigationGuard struct {
	mu         sync.Mutex
	platform   PlatformNavigation
	log        zerolog.Logger
	onLeave    func()
	armed      bool
	message    string
	unregister []func()
}

// NewNavigationGuard creates a disarmed guard. onLeave runs after the user
// confirms leaving through a route change. A nil platform makes the guard
// a pure state holder.
func NewNavigationGuard(platform PlatformNavigation, log zerolog.Logger, onLeave func()) *NavigationGuard {
	return &NavigationGuard{
		platform: platform,
		onLeave:  onLeave,
		log:      log.With().Str("component", "navigation_guard").Logger(),
	}
}

// Arm installs the platform handlers. Arming an armed guard only updates
// the message.
func (g *NavigationGuard) Arm(message string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.message = message
	if g.armed {
		return
	}
	g.armed = true

	if g.platform == nil {
		return
	}
	g.unregister = append(g.unregister,
		g.platform.OnBeforeUnload(g.beforeUnload),
		g.platform.OnRouteChange(g.routeChange),
	)
}

// Disarm removes the platform handlers. It is safe to call repeatedly.
func (g *NavigationGuard) Disarm() {
	g.mu.Lock()
	unregister := g.unregister
	g.unregister = nil
	g.armed = false
	g.mu.Unlock()

	for _, fn := range unregister {
		if fn != nil {
			fn()
		}
	}
}

// Armed reports whether the guard is intercepting navigation.
func (g *NavigationGuard) Armed() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.armed
}

func (g *NavigationGuard) beforeUnload() string {
	g.mu.Lock()
	armed, msg := g.armed, g.message
	g.mu.Unlock()

	if !armed {
		return ""
	}
	g.log.Warn().Msg("Unload intercepted while attempt is live")
	return msg
}

func (g *NavigationGuard) routeChange(to string) bool {
	g.mu.Lock()
	armed, msg := g.armed, g.message
	g.mu.Unlock()

	if !armed {
		return true
	}

	allowed := g.platform.Confirm(msg)
	g.log.Warn().
		Str("to", to).
		Bool("allowed", allowed).
		Msg("Route change intercepted while attempt is live")

	if allowed && g.onLeave != nil {
		g.onLeave()
	}
	return allowed
}
