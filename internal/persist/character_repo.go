package persist

import (
	"context"
	"errors"

	"github.com/charhub/server/internal/component"
	"github.com/jackc/pgx/v5"
)

// CharacterRepo owns the hub's character table. Full character state is the
// hub's only persisted asset; accounts live on the auth server.
type CharacterRepo struct {
	db *DB
}

func NewCharacterRepo(db *DB) *CharacterRepo {
	return &CharacterRepo{db: db}
}

const charColumns = `char_id, account_id, slot, name, class, sex, level, exp,
       hp, max_hp, mp, max_mp, str, dex, con, intel, wis, cha, zone_id, x, y`

func scanCharacter(row pgx.Row) (*component.CharacterState, error) {
	cs := &component.CharacterState{}
	err := row.Scan(
		&cs.CharID, &cs.AccountID, &cs.Slot, &cs.Name, &cs.Class, &cs.Sex,
		&cs.Level, &cs.Exp, &cs.HP, &cs.MaxHP, &cs.MP, &cs.MaxMP,
		&cs.Str, &cs.Dex, &cs.Con, &cs.Intel, &cs.Wis, &cs.Cha,
		&cs.ZoneID, &cs.X, &cs.Y,
	)
	if err != nil {
		return nil, err
	}
	return cs, nil
}

// ListByAccount returns the account's characters ordered by slot, excluding
// those scheduled for deletion.
func (r *CharacterRepo) ListByAccount(ctx context.Context, accountID int32) ([]*component.CharacterState, error) {
	rows, err := r.db.Pool.Query(ctx,
		`SELECT `+charColumns+`
		 FROM characters
		 WHERE account_id = $1 AND delete_date IS NULL
		 ORDER BY slot`, accountID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*component.CharacterState
	for rows.Next() {
		cs, err := scanCharacter(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, cs)
	}
	return out, rows.Err()
}

// LoadBySlot returns the character in the given slot, or nil when the slot is
// empty (a select for an empty slot is a forged packet, the caller rejects).
func (r *CharacterRepo) LoadBySlot(ctx context.Context, accountID int32, slot int16) (*component.CharacterState, error) {
	cs, err := scanCharacter(r.db.Pool.QueryRow(ctx,
		`SELECT `+charColumns+`
		 FROM characters
		 WHERE account_id = $1 AND slot = $2 AND delete_date IS NULL`,
		accountID, slot,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return cs, nil
}

// LoadByID returns the character by id, or nil.
func (r *CharacterRepo) LoadByID(ctx context.Context, charID int32) (*component.CharacterState, error) {
	cs, err := scanCharacter(r.db.Pool.QueryRow(ctx,
		`SELECT `+charColumns+` FROM characters WHERE char_id = $1`, charID,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return cs, nil
}

// Create inserts a new character and returns it with its assigned id.
func (r *CharacterRepo) Create(ctx context.Context, cs *component.CharacterState) error {
	return r.db.Pool.QueryRow(ctx,
		`INSERT INTO characters
		   (account_id, slot, name, class, sex, level, exp,
		    hp, max_hp, mp, max_mp, str, dex, con, intel, wis, cha,
		    zone_id, x, y)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20)
		 RETURNING char_id`,
		cs.AccountID, cs.Slot, cs.Name, cs.Class, cs.Sex, cs.Level, cs.Exp,
		cs.HP, cs.MaxHP, cs.MP, cs.MaxMP, cs.Str, cs.Dex, cs.Con, cs.Intel, cs.Wis, cs.Cha,
		cs.ZoneID, cs.X, cs.Y,
	).Scan(&cs.CharID)
}

// Delete marks the character for deletion. The row survives for audit; the
// slot and name are freed by the delete_date filter on reads.
func (r *CharacterRepo) Delete(ctx context.Context, accountID, charID int32) (bool, error) {
	tag, err := r.db.Pool.Exec(ctx,
		`UPDATE characters SET delete_date = NOW()
		 WHERE char_id = $1 AND account_id = $2 AND delete_date IS NULL`,
		charID, accountID,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// NameExists reports whether a live character already uses the name.
func (r *CharacterRepo) NameExists(ctx context.Context, name string) (bool, error) {
	var exists bool
	err := r.db.Pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM characters WHERE name = $1 AND delete_date IS NULL)`,
		name,
	).Scan(&exists)
	return exists, err
}

// SaveState writes back a full character state pushed by a world server.
func (r *CharacterRepo) SaveState(ctx context.Context, cs *component.CharacterState) error {
	_, err := r.db.Pool.Exec(ctx,
		`UPDATE characters SET
		   class = $2, sex = $3, level = $4, exp = $5,
		   hp = $6, max_hp = $7, mp = $8, max_mp = $9,
		   str = $10, dex = $11, con = $12, intel = $13, wis = $14, cha = $15,
		   zone_id = $16, x = $17, y = $18
		 WHERE char_id = $1`,
		cs.CharID, cs.Class, cs.Sex, cs.Level, cs.Exp,
		cs.HP, cs.MaxHP, cs.MP, cs.MaxMP,
		cs.Str, cs.Dex, cs.Con, cs.Intel, cs.Wis, cs.Cha,
		cs.ZoneID, cs.X, cs.Y,
	)
	return err
}

// SetOnline flips a character's online flag and stamps last_login on the way
// up. Third-party tools read this; the presence registry never does.
func (r *CharacterRepo) SetOnline(ctx context.Context, charID int32, online bool) error {
	if online {
		_, err := r.db.Pool.Exec(ctx,
			`UPDATE characters SET online = TRUE, last_login = NOW() WHERE char_id = $1`, charID)
		return err
	}
	_, err := r.db.Pool.Exec(ctx,
		`UPDATE characters SET online = FALSE WHERE char_id = $1`, charID)
	return err
}

// SetAccountOffline clears the online flag for every character of an account.
func (r *CharacterRepo) SetAccountOffline(ctx context.Context, accountID int32) error {
	_, err := r.db.Pool.Exec(ctx,
		`UPDATE characters SET online = FALSE WHERE account_id = $1`, accountID)
	return err
}

// SetAllOffline clears every online flag. Run at boot: the presence registry
// is rebuilt from scratch, so anything the DB remembers is stale.
func (r *CharacterRepo) SetAllOffline(ctx context.Context) error {
	_, err := r.db.Pool.Exec(ctx, `UPDATE characters SET online = FALSE`)
	return err
}

// UpdateSex applies an account-wide sex change pushed by the auth server.
func (r *CharacterRepo) UpdateSex(ctx context.Context, accountID int32, sex byte) error {
	_, err := r.db.Pool.Exec(ctx,
		`UPDATE characters SET sex = $2 WHERE account_id = $1`, accountID, int16(sex))
	return err
}

// Log appends a char-log audit row.
func (r *CharacterRepo) Log(ctx context.Context, accountID int32, slot int16, name, action string) error {
	_, err := r.db.Pool.Exec(ctx,
		`INSERT INTO charlog (account_id, slot, name, action) VALUES ($1, $2, $3, $4)`,
		accountID, slot, name, action)
	return err
}
