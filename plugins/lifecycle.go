package plugins

import (
	"context"
	"errors"

	"github.com/ComputerNetworkManager/Shared/internal/module"
)

// StartAll starts every loaded module that is not running, dependencies
// first. A module whose dependency failed to start fails in turn with a
// dependency error; the rest keep going.
func StartAll(ctx context.Context, mgr *module.Manager) error {
	return each(ctx, mgr, module.StartOrder, false, func(mod *module.Module) error {
		if mod.IsRunning() {
			return nil
		}
		return mgr.Start(ctx, mod)
	})
}

// StopAll stops every running module, dependents first.
func StopAll(ctx context.Context, mgr *module.Manager) error {
	return each(ctx, mgr, module.StartOrder, true, func(mod *module.Module) error {
		if !mod.IsRunning() {
			return nil
		}
		return mgr.Stop(ctx, mod)
	})
}

// UnloadAll unloads every stopped module, dependents first.
func UnloadAll(ctx context.Context, mgr *module.Manager) error {
	return each(ctx, mgr, module.LoadOrder, true, func(mod *module.Module) error {
		if mod.IsRunning() {
			return nil
		}
		return mgr.Unload(ctx, mod)
	})
}

// Shutdown stops and then unloads everything.
func Shutdown(ctx context.Context, mgr *module.Manager) error {
	stopErr := StopAll(ctx, mgr)
	return errors.Join(stopErr, UnloadAll(ctx, mgr))
}

func each(ctx context.Context, mgr *module.Manager, order func([]module.Descriptor) ([]module.Descriptor, error), reverse bool, fn func(*module.Module) error) error {
	mods := mgr.All()
	var errs []error
	descs, err := order(module.Descriptors(mods))
	if err != nil {
		errs = append(errs, err)
		descs = module.Descriptors(mods)
	}
	if reverse {
		descs = module.Reverse(descs)
	}
	for _, desc := range descs {
		if err := ctx.Err(); err != nil {
			return errors.Join(append(errs, err)...)
		}
		mod, ok := mgr.Get(desc.Name)
		if !ok {
			continue
		}
		if err := fn(mod); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
