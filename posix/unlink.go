package posix

import "context"

// unlink removes one dataset instance's directory tree. Only the rank that
// calls this actually touches the filesystem; hio.Context.Unlink is
// responsible for making sure only rank 0 calls down into a Module's
// DatasetUnlink in a multi-rank run.
func (m *module) unlink(ctx context.Context, name string, id int64) error {
	path := m.paths.DatasetDir(name, id)
	if !m.fio.Exists(ctx, path) {
		return nil
	}
	if err := m.fio.RemoveAll(ctx, path); err != nil {
		return wrapErr(m.rank(), "DatasetUnlink", path, err)
	}
	return nil
}
