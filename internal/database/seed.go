package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"eduhub/pkg/types"
)

// Seed is a fixture of directory data owned by the surrounding marketplace:
// users, friendships, groups, teacher audiences and the agent roster. The
// hub only reads these tables; seeding exists for local runs and tests.
type Seed struct {
	Users       []SeedUser       `yaml:"users"`
	Friendships []SeedFriendship `yaml:"friendships"`
	Groups      []SeedGroup      `yaml:"groups"`
	Audiences   []SeedAudience   `yaml:"audiences"`
	Agents      []SeedAgent      `yaml:"agents"`
}

type SeedUser struct {
	ID         string `yaml:"id"`
	ExternalID string `yaml:"external_id"`
	Role       string `yaml:"role"`
	Name       string `yaml:"name"`
	Avatar     string `yaml:"avatar"`
}

type SeedFriendship struct {
	Requester string `yaml:"requester"`
	Receiver  string `yaml:"receiver"`
	Status    string `yaml:"status"`
}

type SeedGroup struct {
	ID      string   `yaml:"id"`
	Name    string   `yaml:"name"`
	Owner   string   `yaml:"owner"`
	Members []string `yaml:"members"`
}

type SeedAudience struct {
	Teacher string   `yaml:"teacher"`
	Members []string `yaml:"members"`
}

type SeedAgent struct {
	ID     string `yaml:"id"`
	Name   string `yaml:"name"`
	Avatar string `yaml:"avatar"`
}

// LoadSeedFile parses a YAML fixture.
func LoadSeedFile(path string) (*Seed, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read seed file: %w", err)
	}
	var seed Seed
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return nil, fmt.Errorf("failed to parse seed file: %w", err)
	}
	return &seed, nil
}

// ApplySeed upserts the fixture in one transaction. Users without an ID get
// a generated one; the resolved IDs are written back into seed.Users.
func (m *Manager) ApplySeed(ctx context.Context, seed *Seed) error {
	for i := range seed.Users {
		if seed.Users[i].ID == "" {
			seed.Users[i].ID = uuid.New().String()
		}
	}

	return m.executeWrite(ctx, func(ctx context.Context, db *sql.DB) error {
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to begin transaction: %w", err)
		}
		defer func() { _ = tx.Rollback() }()

		now := time.Now().UTC()

		for _, u := range seed.Users {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO users (id, external_id, role, name, avatar) VALUES (?, ?, ?, ?, ?)
				ON CONFLICT(id) DO UPDATE SET
					external_id = excluded.external_id,
					role = excluded.role,
					name = excluded.name,
					avatar = excluded.avatar
			`, u.ID, u.ExternalID, string(types.ParseRole(u.Role)), u.Name, u.Avatar)
			if err != nil {
				return fmt.Errorf("failed to upsert user %s: %w", u.ID, err)
			}
		}

		for _, f := range seed.Friendships {
			status := f.Status
			if status == "" {
				status = string(types.FriendshipAccepted)
			}
			_, err := tx.ExecContext(ctx, `
				INSERT INTO friendships (id, requester_id, receiver_id, status, created_at, updated_at)
				VALUES (?, ?, ?, ?, ?, ?)
				ON CONFLICT(requester_id, receiver_id) DO UPDATE SET
					status = excluded.status,
					updated_at = excluded.updated_at
			`, uuid.New().String(), f.Requester, f.Receiver, status, now, now)
			if err != nil {
				return fmt.Errorf("failed to upsert friendship %s->%s: %w", f.Requester, f.Receiver, err)
			}
		}

		for _, g := range seed.Groups {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO chat_groups (id, name, owner_id) VALUES (?, ?, ?)
				ON CONFLICT(id) DO UPDATE SET name = excluded.name
			`, g.ID, g.Name, nullString(g.Owner))
			if err != nil {
				return fmt.Errorf("failed to upsert group %s: %w", g.ID, err)
			}
			for _, member := range g.Members {
				_, err := tx.ExecContext(ctx,
					`INSERT OR IGNORE INTO group_members (group_id, user_id, joined_at) VALUES (?, ?, ?)`,
					g.ID, member, now,
				)
				if err != nil {
					return fmt.Errorf("failed to add %s to group %s: %w", member, g.ID, err)
				}
			}
		}

		for _, a := range seed.Audiences {
			for _, member := range a.Members {
				_, err := tx.ExecContext(ctx,
					`INSERT OR IGNORE INTO teacher_audience (teacher_id, user_id) VALUES (?, ?)`,
					a.Teacher, member,
				)
				if err != nil {
					return fmt.Errorf("failed to add %s to audience of %s: %w", member, a.Teacher, err)
				}
			}
		}

		for position, agent := range seed.Agents {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO support_agents (id, name, avatar, position) VALUES (?, ?, ?, ?)
				ON CONFLICT(id) DO UPDATE SET
					name = excluded.name,
					avatar = excluded.avatar,
					position = excluded.position,
					active = 1
			`, agent.ID, agent.Name, agent.Avatar, position)
			if err != nil {
				return fmt.Errorf("failed to upsert agent %s: %w", agent.ID, err)
			}
		}

		return tx.Commit()
	})
}

// SetFriendshipStatus changes the status of an existing friendship row.
func (m *Manager) SetFriendshipStatus(ctx context.Context, requesterID, receiverID string, status types.FriendshipStatus) error {
	return m.executeWrite(ctx, func(ctx context.Context, db *sql.DB) error {
		_, err := db.ExecContext(ctx, `
			UPDATE friendships SET status = ?, updated_at = ?
			WHERE requester_id = ? AND receiver_id = ?
		`, string(status), time.Now().UTC(), requesterID, receiverID)
		if err != nil {
			return fmt.Errorf("failed to update friendship: %w", err)
		}
		return nil
	})
}
