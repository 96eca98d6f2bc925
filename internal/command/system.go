package command

import (
	"context"

	"ppexec/internal/domain"
	"ppexec/internal/storage"
	"ppexec/internal/table"
)

// SystemNames configures the names of the system units and the
// storage_type aliases write-result accepts.
type SystemNames struct {
	ReadInterProc  string
	WriteInterProc string
	WriteResult    string

	LocalAlias     string
	SharedAlias    string
	InterProcAlias string
}

// DefaultSystemNames returns the stock names.
func DefaultSystemNames() SystemNames {
	return SystemNames{
		ReadInterProc:  "sys_read_interproc",
		WriteInterProc: "sys_write_interproc",
		WriteResult:    "sys_write_result",
		LocalAlias:     "LOCAL_POST_PROCESSING",
		SharedAlias:    "SHARED_POST_PROCESSING",
		InterProcAlias: "INTERPROCESSING",
	}
}

func (n SystemNames) withDefaults() SystemNames {
	d := DefaultSystemNames()
	n.ReadInterProc = orDefault(n.ReadInterProc, d.ReadInterProc)
	n.WriteInterProc = orDefault(n.WriteInterProc, d.WriteInterProc)
	n.WriteResult = orDefault(n.WriteResult, d.WriteResult)
	n.LocalAlias = orDefault(n.LocalAlias, d.LocalAlias)
	n.SharedAlias = orDefault(n.SharedAlias, d.SharedAlias)
	n.InterProcAlias = orDefault(n.InterProcAlias, d.InterProcAlias)
	return n
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

// Reserved lists the system unit names.
func (n SystemNames) Reserved() []string {
	return []string{n.ReadInterProc, n.WriteInterProc, n.WriteResult}
}

// StorageKind resolves a storage name: one of the configured aliases or a
// plain root name such as local, shared or interproc.
func (n SystemNames) StorageKind(name string) (domain.StorageKind, error) {
	n = n.withDefaults()
	switch name {
	case n.LocalAlias:
		return domain.StorageLocal, nil
	case n.SharedAlias:
		return domain.StorageShared, nil
	case n.InterProcAlias:
		return domain.StorageInterProcess, nil
	}
	return domain.ParseStorageKind(name)
}

// resultKind maps a write-result storage_type to a root. Results never go
// to the inter-process root.
func (n SystemNames) resultKind(unit, storageType string) (domain.StorageKind, error) {
	kind, err := n.StorageKind(storageType)
	if err != nil || kind == domain.StorageInterProcess {
		return 0, domain.ErrInvalidArgument(unit, "unknown storage_type %q", storageType)
	}
	return kind, nil
}

func pathRules(storageType bool) Syntax {
	s := Syntax{Rules: []Rule{{Name: "path", Type: RuleKwarg, Required: true}}}
	if storageType {
		s.Rules = append(s.Rules, Rule{Name: "storage_type", Type: RuleKwarg, Required: true})
	}
	return s
}

func systemEntries(store *storage.Store, names SystemNames) []Entry {
	return []Entry{
		{
			Name:   names.ReadInterProc,
			Syntax: pathRules(true),
			Source: SourceSystem,
			Factory: func(args Args) (Unit, error) {
				path, err := RequireString(names.ReadInterProc, args, "path")
				if err != nil {
					return nil, err
				}
				return UnitFunc(func(ctx context.Context, _ *table.Table) (*table.Table, error) {
					t, _, err := store.ReadAny(ctx, domain.StorageInterProcess, path)
					return t, err
				}), nil
			},
		},
		{
			Name:   names.WriteInterProc,
			Syntax: pathRules(false),
			Source: SourceSystem,
			Factory: func(args Args) (Unit, error) {
				path, err := RequireString(names.WriteInterProc, args, "path")
				if err != nil {
					return nil, err
				}
				return writeUnit(store, names.WriteInterProc, domain.StorageInterProcess, path, storage.Columnar), nil
			},
		},
		{
			Name:   names.WriteResult,
			Syntax: pathRules(true),
			Source: SourceSystem,
			Factory: func(args Args) (Unit, error) {
				path, err := RequireString(names.WriteResult, args, "path")
				if err != nil {
					return nil, err
				}
				st, err := RequireString(names.WriteResult, args, "storage_type")
				if err != nil {
					return nil, err
				}
				kind, err := names.resultKind(names.WriteResult, st)
				if err != nil {
					return nil, err
				}
				return writeUnit(store, names.WriteResult, kind, path, storage.Row), nil
			},
		},
	}
}

// writeUnit persists its input and passes it through unchanged.
func writeUnit(store *storage.Store, unit string, kind domain.StorageKind, path string, enc storage.Encoding) Unit {
	return UnitFunc(func(ctx context.Context, in *table.Table) (*table.Table, error) {
		if in == nil {
			return nil, domain.ErrInvalidArgument(unit, "no table to write")
		}
		if err := store.Write(ctx, kind, path, enc, in); err != nil {
			return nil, err
		}
		return in, nil
	})
}
