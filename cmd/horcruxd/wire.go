//go:build wireinject

package main

import (
	"github.com/google/wire"
)

// initializeApp is the wire injector function, following the teacher's own
// cmd/api/wire.go + lib/providers/providers.go split. This file only
// compiles under the wireinject tag; ordinary builds use wire_gen.go, a
// hand-written mirror of what `wire ./cmd/horcruxd` would emit from this
// injector, so the binary links without the wire step ever running.
func initializeApp() (*application, func(), error) {
	panic(wire.Build(
		ProvideLogger,
		ProvideContext,
		ProvideConfig,
		ProvidePaths,
		ProvideMeter,
		ProvideStore,
		ProvideNetworkManager,
		ProvideVolumeManager,
		ProvideInventoryManager,
		ProvideHypervisorAdapter,
		ProvideLifecycleManager,
		ProvideAuthnManager,
		ProvideAuthzManager,
		ProvideMetricsCollector,
		ProvideEventBus,
		ProvideConsoleManager,
		wire.Struct(new(application), "*"),
	))
}
