package settings

import (
	"context"
	"database/sql"

	"github.com/hearth-home/hearth/pkg/models"
)

// LoadParams reads every entry of the group as a ParamList, keyed by param
// name. Missing groups yield an empty list.
func (s *Store) LoadParams(ctx context.Context, group string) (models.ParamList, error) {
	keys, err := s.Keys(ctx, group)
	if err != nil {
		return nil, err
	}
	var params models.ParamList
	for _, k := range keys {
		v, ok, err := s.Value(ctx, group, k)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		params = append(params, models.Param{Name: k, Value: v})
	}
	return params, nil
}

// ReplaceParamsTx atomically replaces the group's entries with the given
// ParamList inside a caller-held transaction.
func (s *Store) ReplaceParamsTx(ctx context.Context, tx *sql.Tx, group string, params models.ParamList) error {
	if err := s.RemoveGroupTx(ctx, tx, group); err != nil {
		return err
	}
	for _, p := range params {
		if err := s.SetValueTx(ctx, tx, group, p.Name, p.Value); err != nil {
			return err
		}
	}
	return nil
}

// ReplaceParams is ReplaceParamsTx in its own transaction.
func (s *Store) ReplaceParams(ctx context.Context, group string, params models.ParamList) error {
	return s.Tx(ctx, func(tx *sql.Tx) error {
		return s.ReplaceParamsTx(ctx, tx, group, params)
	})
}
