package testfixtures

import (
	"log/slog"
	"math/rand/v2"

	"github.com/example/networking-rounds/internal/application"
	"github.com/example/networking-rounds/internal/phase"
)

// ServiceFactory assists tests with constructing application services using
// deterministic identifiers and clocks.
type ServiceFactory struct {
	Clock       *Clock
	IDGenerator *IDGenerator
	// Seed drives the matching shuffle so group composition is repeatable.
	Seed uint64
}

// ServiceFactoryOption configures a ServiceFactory instance.
type ServiceFactoryOption func(*ServiceFactory)

// NewServiceFactory constructs a ServiceFactory with defaults.
func NewServiceFactory(opts ...ServiceFactoryOption) *ServiceFactory {
	factory := &ServiceFactory{
		Clock:       NewClock(ReferenceTime()),
		IDGenerator: NewIDGenerator("id"),
		Seed:        1,
	}
	for _, opt := range opts {
		opt(factory)
	}
	if factory.Clock == nil {
		factory.Clock = NewClock(ReferenceTime())
	}
	if factory.IDGenerator == nil {
		factory.IDGenerator = NewIDGenerator("id")
	}
	return factory
}

// WithClock overrides the clock used by the factory.
func WithClock(clock *Clock) ServiceFactoryOption {
	return func(factory *ServiceFactory) {
		factory.Clock = clock
	}
}

// WithIDGenerator overrides the identifier generator used by the factory.
func WithIDGenerator(generator *IDGenerator) ServiceFactoryOption {
	return func(factory *ServiceFactory) {
		factory.IDGenerator = generator
	}
}

// WithSeed overrides the matching shuffle seed.
func WithSeed(seed uint64) ServiceFactoryOption {
	return func(factory *ServiceFactory) {
		factory.Seed = seed
	}
}

// ServiceDeps captures the repositories the services run on.
type ServiceDeps struct {
	Sessions      application.SessionRepository
	Registrations application.RegistrationRepository
	Matches       application.MatchRepository
	Notifier      application.Notifier
	// Parameters defaults to phase.DefaultParameters when zero.
	Parameters phase.Parameters
	Logger     *slog.Logger
}

// Services bundles every service wired over one set of repositories.
type Services struct {
	Sessions      *application.SessionService
	Registrations *application.RegistrationService
	Matching      *application.MatchingService
	Outcomes      *application.OutcomeService
	Driver        *application.Driver
}

// NewServices builds all services with the factory clock, ids and seed.
// Verification hashing uses cheap argon2 parameters.
func (f *ServiceFactory) NewServices(deps ServiceDeps) *Services {
	params := deps.Parameters
	if params == (phase.Parameters{}) {
		params = phase.DefaultParameters()
	}
	now := f.Clock.NowFunc()
	ids := f.IDGenerator.NextFunc()
	seed := f.Seed
	newRand := func() *rand.Rand {
		return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	}

	sessions := application.NewSessionService(deps.Sessions, params, application.SessionCacheConfig{}, ids, now, deps.Logger)
	registrations := application.NewRegistrationService(sessions, deps.Registrations, deps.Matches, deps.Notifier, params, FastArgon2idParams, now, deps.Logger)
	matching := application.NewMatchingService(deps.Registrations, deps.Matches, deps.Notifier, ids, newRand, now, deps.Logger)
	outcomes := application.NewOutcomeService(sessions, deps.Registrations, deps.Matches, params, now, deps.Logger)
	driver := application.NewDriver(sessions, deps.Registrations, deps.Matches, matching, outcomes, deps.Notifier, f.Clock, deps.Logger)

	return &Services{
		Sessions:      sessions,
		Registrations: registrations,
		Matching:      matching,
		Outcomes:      outcomes,
		Driver:        driver,
	}
}

// FastArgon2idParams keeps verification hashing quick in tests.
var FastArgon2idParams = application.Argon2idParams{
	Memory:      1024,
	Iterations:  1,
	Parallelism: 1,
	SaltLength:  8,
	KeyLength:   16,
}
