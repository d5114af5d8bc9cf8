package db

import (
	"database/sql"
	"time"
)

// StoreOTP saves a one-time code, replacing any outstanding code for the
// same (email, purpose). Only one code per pair is ever active.
func (db *DB) StoreOTP(email, code, purpose string, now, expiresAt time.Time) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.Exec(`
	DELETE FROM pending_otps
	WHERE email = ? AND purpose = ?`, email, purpose)
	if err != nil {
		return err
	}

	_, err = tx.Exec(`
	INSERT INTO pending_otps (email, otp, purpose, created_at, expires_at)
	VALUES (?, ?, ?, ?, ?)`,
		email, code, purpose, db.formatTime(now), db.formatTime(expiresAt))
	if err != nil {
		return err
	}

	return tx.Commit()
}

// VerifyOTP checks a submitted code against the stored one. A successful
// verify consumes the code; a second attempt with the same code fails.
func (db *DB) VerifyOTP(email, code, purpose string, now time.Time) (bool, error) {
	tx, err := db.Begin()
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	var stored string
	err = tx.QueryRow(`
	SELECT otp FROM pending_otps
	WHERE email = ? AND purpose = ? AND expires_at > ?
	ORDER BY created_at DESC LIMIT 1`,
		email, purpose, db.formatTime(now)).Scan(&stored)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	if stored != code {
		return false, nil
	}

	_, err = tx.Exec(`
	DELETE FROM pending_otps
	WHERE email = ? AND purpose = ?`, email, purpose)
	if err != nil {
		return false, err
	}

	return true, tx.Commit()
}

// PurgeExpiredOTPs drops codes past their expiry.
func (db *DB) PurgeExpiredOTPs(now time.Time) error {
	_, err := db.Exec(`DELETE FROM pending_otps WHERE expires_at <= ?`, db.formatTime(now))
	return err
}
