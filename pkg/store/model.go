package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/CTAG07/bytemarkov/pkg/markov"
)

// ModelInfo holds the metadata of a stored model: its unique ID, name, order,
// the revision written by the last save, and the size of the corpus it was
// trained on.
type ModelInfo struct {
	Id         int    `json:"id"`
	Name       string `json:"name"`
	Order      int    `json:"order"`
	Revision   string `json:"revision"`
	CorpusSize int64  `json:"corpus_size"`
}

// GetModelInfos retrieves metadata for all models currently in the database,
// returning them in a map keyed by model name.
func (s *Store) GetModelInfos(ctx context.Context) (map[string]ModelInfo, error) {
	rows, err := s.stmtGetModels.QueryContext(ctx)
	if err != nil {
		return nil, err
	}
	defer func(rows *sql.Rows) {
		_ = rows.Close()
	}(rows)

	models := make(map[string]ModelInfo)
	for rows.Next() {
		var model ModelInfo
		if err = rows.Scan(&model.Id, &model.Name, &model.Order, &model.Revision, &model.CorpusSize); err != nil {
			return nil, err
		}
		models[model.Name] = model
	}
	if err = rows.Err(); err != nil {
		return nil, err
	}
	return models, nil
}

// GetModelInfo retrieves the metadata for a single model specified by name.
// It returns an error matching ErrModelNotFound if no such model exists.
func (s *Store) GetModelInfo(ctx context.Context, modelName string) (ModelInfo, error) {
	info := ModelInfo{Name: modelName}
	err := s.stmtGetModelInfo.QueryRowContext(ctx, modelName).Scan(&info.Id, &info.Order, &info.Revision, &info.CorpusSize)
	if errors.Is(err, sql.ErrNoRows) {
		return ModelInfo{}, fmt.Errorf("%q: %w", modelName, ErrModelNotFound)
	}
	if err != nil {
		return ModelInfo{}, err
	}
	return info, nil
}

// SaveModel writes m under the given name, replacing any model already stored
// under that name. Every save gets a new revision. The entire operation is
// performed within a single database transaction.
func (s *Store) SaveModel(ctx context.Context, name string, m *markov.Model) (ModelInfo, error) {
	if name == "" {
		return ModelInfo{}, errors.New("model name must not be empty")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return ModelInfo{}, err
	}
	defer func(tx *sql.Tx) {
		_ = tx.Rollback()
	}(tx)

	info := ModelInfo{
		Name:       name,
		Order:      m.Order(),
		Revision:   s.newRevision(),
		CorpusSize: m.CorpusSize(),
	}

	err = tx.QueryRowContext(ctx, "SELECT model_id FROM markov_models WHERE model_name = ?", name).Scan(&info.Id)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		res, err := tx.ExecContext(ctx, "INSERT INTO markov_models (model_name, model_order, revision, corpus_size) VALUES (?, ?, ?, ?)",
			info.Name, info.Order, info.Revision, info.CorpusSize)
		if err != nil {
			return ModelInfo{}, fmt.Errorf("failed to insert new model '%s': %w", name, err)
		}
		newID, _ := res.LastInsertId()
		info.Id = int(newID)
	case err != nil:
		return ModelInfo{}, fmt.Errorf("failed to query for model '%s': %w", name, err)
	default:
		if err = deleteModelData(ctx, tx, info.Id); err != nil {
			return ModelInfo{}, err
		}
		if _, err = tx.ExecContext(ctx, "UPDATE markov_models SET model_order = ?, revision = ?, corpus_size = ? WHERE model_id = ?",
			info.Order, info.Revision, info.CorpusSize, info.Id); err != nil {
			return ModelInfo{}, fmt.Errorf("failed to update model '%s': %w", name, err)
		}
	}

	stmtInsertWindow, err := tx.PrepareContext(ctx, `INSERT INTO markov_windows (model_id, window_id, window_bytes) VALUES (?, ?, ?);`)
	if err != nil {
		return ModelInfo{}, fmt.Errorf("failed to prepare window insert statement: %w", err)
	}
	defer func(stmt *sql.Stmt) {
		_ = stmt.Close()
	}(stmtInsertWindow)

	stmtInsertChain, err := tx.PrepareContext(ctx, `INSERT INTO markov_chains (model_id, window_id, next_byte, frequency) VALUES (?, ?, ?, ?);`)
	if err != nil {
		return ModelInfo{}, fmt.Errorf("failed to prepare chain insert statement: %w", err)
	}
	defer func(stmt *sql.Stmt) {
		_ = stmt.Close()
	}(stmtInsertChain)

	var transitions int
	for windowID, w := range m.Windows() {
		if _, err = stmtInsertWindow.ExecContext(ctx, info.Id, windowID, w.Bytes()); err != nil {
			return ModelInfo{}, fmt.Errorf("failed to insert window %s: %w", w, err)
		}
		for _, succ := range m.Successors(w) {
			if _, err = stmtInsertChain.ExecContext(ctx, info.Id, windowID, int(succ.Byte), succ.Freq); err != nil {
				return ModelInfo{}, fmt.Errorf("failed to insert chain link (%s -> %q): %w", w, succ.Byte, err)
			}
			transitions++
		}
	}

	if err = tx.Commit(); err != nil {
		return ModelInfo{}, err
	}

	s.logger.InfoContext(ctx, "Model saved",
		slog.String("model_name", info.Name),
		slog.Int("model_id", info.Id),
		slog.String("revision", info.Revision),
		slog.Int("windows", m.Len()),
		slog.Int("transitions", transitions),
	)
	return info, nil
}

// LoadModel reads a stored model back into memory. The model row, its
// windows and its chains are read in one read-only transaction, so a save
// committing concurrently is seen either entirely or not at all.
func (s *Store) LoadModel(ctx context.Context, info ModelInfo) (*markov.Model, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, err
	}
	defer func(tx *sql.Tx) {
		_ = tx.Rollback()
	}(tx)

	// Order and corpus size come from the same snapshot as the data, not from
	// info, which may predate a later save.
	exported := &markov.ExportedModel{}
	err = tx.StmtContext(ctx, s.stmtGetModelByID).QueryRowContext(ctx, info.Id).Scan(&exported.Order, &exported.CorpusSize)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%q: %w", info.Name, ErrModelNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("could not query model %d: %w", info.Id, err)
	}

	wRows, err := tx.StmtContext(ctx, s.stmtLoadWindows).QueryContext(ctx, info.Id)
	if err != nil {
		return nil, fmt.Errorf("could not query windows for model %d: %w", info.Id, err)
	}
	indexByID := make(map[int]int)
	for wRows.Next() {
		var id int
		var window []byte
		if err = wRows.Scan(&id, &window); err != nil {
			_ = wRows.Close()
			return nil, fmt.Errorf("failed to scan window row: %w", err)
		}
		indexByID[id] = len(exported.Chains)
		exported.Chains = append(exported.Chains, markov.ExportedChain{Window: window})
	}
	_ = wRows.Close()
	if err = wRows.Err(); err != nil {
		return nil, fmt.Errorf("error after iterating window rows: %w", err)
	}

	cRows, err := tx.StmtContext(ctx, s.stmtLoadChains).QueryContext(ctx, info.Id)
	if err != nil {
		return nil, fmt.Errorf("could not query chains for model %d: %w", info.Id, err)
	}
	defer func(rows *sql.Rows) {
		_ = rows.Close()
	}(cRows)
	for cRows.Next() {
		var windowID, nextByte, freq int
		if err = cRows.Scan(&windowID, &nextByte, &freq); err != nil {
			return nil, fmt.Errorf("failed to scan chain row: %w", err)
		}
		idx, ok := indexByID[windowID]
		if !ok {
			return nil, fmt.Errorf("consistency error: chain refers to unknown window %d", windowID)
		}
		if nextByte < 0 || nextByte > 255 {
			return nil, fmt.Errorf("consistency error: next byte %d out of range", nextByte)
		}
		exported.Chains[idx].Successors = append(exported.Chains[idx].Successors,
			markov.ExportedSuccessor{Byte: byte(nextByte), Freq: freq})
	}
	if err = cRows.Err(); err != nil {
		return nil, fmt.Errorf("error after iterating chain rows: %w", err)
	}

	m, err := markov.FromExported(exported)
	if err != nil {
		return nil, fmt.Errorf("stored model '%s' is corrupt: %w", info.Name, err)
	}

	s.logger.DebugContext(ctx, "Model loaded",
		slog.String("model_name", info.Name),
		slog.Int("model_id", info.Id),
		slog.Int("windows", m.Len()),
	)
	return m, nil
}

// RemoveModel deletes a model and all of its associated chain data from the
// database. The operation is performed within a transaction.
func (s *Store) RemoveModel(ctx context.Context, model ModelInfo) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func(tx *sql.Tx) {
		_ = tx.Rollback()
	}(tx)

	if err = deleteModelData(ctx, tx, model.Id); err != nil {
		return err
	}
	if _, err = tx.ExecContext(ctx, "DELETE FROM markov_models WHERE model_id = ?", model.Id); err != nil {
		return fmt.Errorf("failed to remove model %d: %w", model.Id, err)
	}

	if err = tx.Commit(); err != nil {
		return err
	}

	s.logger.InfoContext(ctx, "Model removed successfully",
		slog.String("model_name", model.Name),
		slog.Int("model_id", model.Id),
	)
	return nil
}

func deleteModelData(ctx context.Context, tx *sql.Tx, modelID int) error {
	if _, err := tx.ExecContext(ctx, "DELETE FROM markov_chains WHERE model_id = ?", modelID); err != nil {
		return fmt.Errorf("failed to remove chains for model %d: %w", modelID, err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM markov_windows WHERE model_id = ?", modelID); err != nil {
		return fmt.Errorf("failed to remove windows for model %d: %w", modelID, err)
	}
	return nil
}
