package database

import (
	"database/sql"
	"fmt"
)

// SchemaValidator checks that an opened database has the structure the
// store expects. It is run after migrations at startup.
type SchemaValidator struct {
	db *sql.DB
}

// NewSchemaValidator creates a new schema validator
func NewSchemaValidator(db *sql.DB) *SchemaValidator {
	return &SchemaValidator{db: db}
}

var requiredTables = []string{
	"users",
	"friendships",
	"chat_groups",
	"group_members",
	"teacher_audience",
	"messages",
	"support_agents",
	"support_sessions",
	"help_messages",
	"schema_migrations",
}

var requiredIndexes = []string{
	"idx_friendships_receiver",
	"idx_messages_receiver_time",
	"idx_messages_group_time",
	"idx_support_sessions_active_guest",
	"idx_help_messages_guest_time",
}

// Validate runs every check.
func (v *SchemaValidator) Validate() error {
	if err := v.ValidateTablesExist(); err != nil {
		return err
	}
	if err := v.ValidateTableStructure(); err != nil {
		return err
	}
	return v.ValidateIndexes()
}

// ValidateTablesExist verifies that all required tables exist
func (v *SchemaValidator) ValidateTablesExist() error {
	for _, table := range requiredTables {
		exists, err := v.objectExists("table", table)
		if err != nil {
			return fmt.Errorf("error checking table %s: %w", table, err)
		}
		if !exists {
			return fmt.Errorf("required table %s does not exist", table)
		}
	}
	return nil
}

// ValidateTableStructure verifies the columns the store reads and writes.
func (v *SchemaValidator) ValidateTableStructure() error {
	expected := map[string]map[string]string{
		"users": {
			"id":              "TEXT",
			"external_id":     "TEXT",
			"role":            "TEXT",
			"name":            "TEXT",
			"presence_status": "TEXT",
			"is_online":       "INTEGER",
			"last_seen":       "DATETIME",
		},
		"messages": {
			"id":           "TEXT",
			"sender_id":    "TEXT",
			"receiver_id":  "TEXT",
			"group_id":     "TEXT",
			"message_type": "TEXT",
			"content":      "TEXT",
			"file_size":    "INTEGER",
			"is_broadcast": "INTEGER",
			"created_at":   "DATETIME",
		},
		"support_sessions": {
			"id":       "TEXT",
			"guest_id": "TEXT",
			"agent_id": "TEXT",
			"active":   "INTEGER",
		},
		"help_messages": {
			"id":         "TEXT",
			"guest_id":   "TEXT",
			"sender":     "TEXT",
			"content":    "TEXT",
			"created_at": "DATETIME",
		},
	}

	for table, columns := range expected {
		if err := v.validateColumns(table, columns); err != nil {
			return fmt.Errorf("%s table structure invalid: %w", table, err)
		}
	}
	return nil
}

// ValidateIndexes verifies that all required indexes exist
func (v *SchemaValidator) ValidateIndexes() error {
	for _, index := range requiredIndexes {
		exists, err := v.objectExists("index", index)
		if err != nil {
			return fmt.Errorf("error checking index %s: %w", index, err)
		}
		if !exists {
			return fmt.Errorf("required index %s does not exist", index)
		}
	}
	return nil
}

func (v *SchemaValidator) objectExists(kind, name string) (bool, error) {
	var count int
	err := v.db.QueryRow(
		"SELECT COUNT(*) FROM sqlite_master WHERE type=? AND name=?",
		kind, name,
	).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (v *SchemaValidator) validateColumns(tableName string, expectedColumns map[string]string) error {
	rows, err := v.db.Query(fmt.Sprintf("PRAGMA table_info(%s)", tableName))
	if err != nil {
		return err
	}
	defer func() {
		_ = rows.Close()
	}()

	found := make(map[string]string)
	for rows.Next() {
		var (
			cid          int
			name         string
			dataType     string
			notNull      int
			defaultValue interface{}
			pk           int
		)
		if err := rows.Scan(&cid, &name, &dataType, &notNull, &defaultValue, &pk); err != nil {
			return err
		}
		found[name] = dataType
	}
	if err := rows.Err(); err != nil {
		return err
	}

	for column, wantType := range expectedColumns {
		gotType, ok := found[column]
		if !ok {
			return fmt.Errorf("column %s not found", column)
		}
		if gotType != wantType {
			return fmt.Errorf("column %s has type %s, expected %s", column, gotType, wantType)
		}
	}
	return nil
}
