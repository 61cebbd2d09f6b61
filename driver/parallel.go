package driver

import "golang.org/x/sync/errgroup"

// CompileAll compiles each of sources independently and concurrently,
// one *jit.Module/*vm.VM per program as spec §5 requires ("multiple
// independent IR programs may be compiled in parallel if each owns its
// own JIT module"). It returns one *Result per source, in the same
// order, or the first error encountered across all of them.
func CompileAll(sources []string, opts Options) ([]*Result, error) {
	results := make([]*Result, len(sources))

	var g errgroup.Group
	for i, src := range sources {
		i, src := i, src
		g.Go(func() error {
			res, err := Compile(src, opts)
			if err != nil {
				return err
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
