package storage

import "time"

// SetFallback stores the canned response for a category.
func (s *Store) SetFallback(category, response string) error {
	_, err := s.db.Exec(`
		INSERT INTO fallback_responses (category, response, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(category) DO UPDATE SET response = excluded.response, updated_at = excluded.updated_at`,
		category, response, formatTime(time.Now()),
	)
	return err
}

// GetAllFallbacks returns every stored category → response pair.
func (s *Store) GetAllFallbacks() (map[string]string, error) {
	rows, err := s.db.Query(`SELECT category, response FROM fallback_responses`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, err
		}
		result[k] = v
	}
	return result, rows.Err()
}

func (s *Store) DeleteFallback(category string) error {
	res, err := s.db.Exec(`DELETE FROM fallback_responses WHERE category = ?`, category)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
