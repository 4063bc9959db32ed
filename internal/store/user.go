package store

import "database/sql"

// UpsertUser inserts or updates a user.
func (db *DB) UpsertUser(u *User) error {
	_, err := db.Exec(`
		INSERT INTO users (id, name, role) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = COALESCE(NULLIF(excluded.name, ''), users.name),
			role = COALESCE(NULLIF(excluded.role, ''), users.role)`,
		u.ID, u.Name, u.Role)
	return err
}

// GetUser returns the user with id, or nil if there is none.
func (db *DB) GetUser(id string) (*User, error) {
	var u User
	err := db.QueryRow(`SELECT id, name, role FROM users WHERE id = ?`, id).Scan(&u.ID, &u.Name, &u.Role)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// UpsertProperty inserts or updates a property.
func (db *DB) UpsertProperty(p *Property) error {
	_, err := db.Exec(`
		INSERT INTO properties (id, title, owner_id) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = COALESCE(NULLIF(excluded.title, ''), properties.title),
			owner_id = COALESCE(NULLIF(excluded.owner_id, ''), properties.owner_id)`,
		p.ID, p.Title, p.OwnerID)
	return err
}

// GetProperty returns the property with id, or nil if there is none.
func (db *DB) GetProperty(id string) (*Property, error) {
	var p Property
	err := db.QueryRow(`SELECT id, title, owner_id FROM properties WHERE id = ?`, id).Scan(&p.ID, &p.Title, &p.OwnerID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}
