// ABOUTME: Typed convenience wrappers over Deduplicator.Execute.
// ABOUTME: Do runs one call; Wrap returns a reusable deduplicated function.

package dedupe

import "context"

// Do executes fn under key with typed results. All concurrent callers for
// the same key share one invocation and observe the same outcome.
func Do[T any](ctx context.Context, d *Deduplicator, key string, fn func(ctx context.Context) (T, error)) (T, error) {
	v, err := d.Execute(ctx, key, func(ctx context.Context) (any, error) {
		return fn(ctx)
	})
	if err != nil {
		var zero T
		return zero, err
	}
	t, _ := v.(T)
	return t, nil
}

// Wrap returns a deduplicated version of fn. The key is derived from the
// argument via keyFn, so identical concurrent arguments share one call.
func Wrap[A, T any](d *Deduplicator, keyFn func(arg A) string, fn func(ctx context.Context, arg A) (T, error)) func(ctx context.Context, arg A) (T, error) {
	return func(ctx context.Context, arg A) (T, error) {
		return Do(ctx, d, keyFn(arg), func(ctx context.Context) (T, error) {
			return fn(ctx, arg)
		})
	}
}
