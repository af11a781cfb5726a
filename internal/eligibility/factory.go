package eligibility

import (
	"github.com/rs/zerolog"

	"github.com/sprouthealth/intake/internal/platform/payers"
)

// AdapterConstructor builds a payer-specific adapter.
type AdapterConstructor func() Adapter

// Factory selects an adapter implementation per payer. Today no payer needs
// an override, so every lookup falls through to the generic adapter; the
// override table exists so a payer with nonstandard 271 semantics can be
// special-cased without touching callers.
type Factory struct {
	generic   Adapter
	overrides map[string]AdapterConstructor
	logger    zerolog.Logger
}

// NewFactory builds a factory around the generic adapter. A nil generic
// adapter is a programmer error and panics.
func NewFactory(generic Adapter, logger zerolog.Logger) *Factory {
	if generic == nil {
		panic("eligibility: factory requires a generic adapter")
	}
	return &Factory{
		generic:   generic,
		overrides: make(map[string]AdapterConstructor),
		logger:    logger,
	}
}

// Register installs a per-payer override. The payer name is normalized the
// same way lookups are.
func (f *Factory) Register(payerName string, ctor AdapterConstructor) {
	f.overrides[payers.Normalize(payerName)] = ctor
}

// AdapterFor returns the adapter for a payer. A failing override constructor
// must not raise to the caller: it falls back to the generic adapter and is
// logged.
func (f *Factory) AdapterFor(payerName string) Adapter {
	ctor, ok := f.overrides[payers.Normalize(payerName)]
	if !ok {
		return f.generic
	}

	adapter := f.construct(payerName, ctor)
	if adapter == nil {
		return f.generic
	}
	return adapter
}

func (f *Factory) construct(payerName string, ctor AdapterConstructor) (adapter Adapter) {
	defer func() {
		if r := recover(); r != nil {
			f.logger.Error().
				Str("payer", payerName).
				Interface("panic", r).
				Msg("payer adapter construction failed, using generic adapter")
			adapter = nil
		}
	}()
	return ctor()
}
