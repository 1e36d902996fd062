// Copyright (c) 2021 Tulir Asokan
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package sqlstore

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
)

type upgradeFunc func(context.Context, pgx.Tx) error

// Upgrades is a list of functions that will upgrade a database to the latest version.
//
// This may be of use if you want to manage the database fully manually, but in most cases you
// should just call Container.Upgrade to let the library handle everything.
var Upgrades = [...]upgradeFunc{upgradeV1, upgradeV2}

func (c *Container) getVersion(ctx context.Context) (int, error) {
	_, err := c.pool.Exec(ctx, "CREATE TABLE IF NOT EXISTS chatpay_version (version INTEGER)")
	if err != nil {
		return -1, err
	}

	version := 0
	err = c.pool.QueryRow(ctx, "SELECT version FROM chatpay_version LIMIT 1").Scan(&version)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return -1, err
	}
	return version, nil
}

func setVersion(ctx context.Context, tx pgx.Tx, version int) error {
	_, err := tx.Exec(ctx, "DELETE FROM chatpay_version")
	if err != nil {
		return err
	}
	_, err = tx.Exec(ctx, "INSERT INTO chatpay_version (version) VALUES ($1)", version)
	return err
}

// Upgrade upgrades the database from the current to the latest version available.
func (c *Container) Upgrade(ctx context.Context) error {
	version, err := c.getVersion(ctx)
	if err != nil {
		return err
	}

	for ; version < len(Upgrades); version++ {
		tx, err := c.pool.Begin(ctx)
		if err != nil {
			return err
		}

		migrateFunc := Upgrades[version]
		c.log.Infof("Upgrading database to v%d", version+1)
		err = migrateFunc(ctx, tx)
		if err != nil {
			_ = tx.Rollback(ctx)
			return err
		}

		if err = setVersion(ctx, tx, version+1); err != nil {
			_ = tx.Rollback(ctx)
			return err
		}

		if err = tx.Commit(ctx); err != nil {
			return err
		}
	}

	return nil
}

func upgradeV1(ctx context.Context, tx pgx.Tx) error {
	_, err := tx.Exec(ctx, `CREATE TABLE chatpay_session (
		profile TEXT PRIMARY KEY,
		token   TEXT NOT NULL DEFAULT ''
	)`)
	return err
}

func upgradeV2(ctx context.Context, tx pgx.Tx) error {
	_, err := tx.Exec(ctx, `ALTER TABLE chatpay_session
		ADD COLUMN onboarding_pending BOOLEAN NOT NULL DEFAULT false,
		ADD COLUMN updated_at TIMESTAMPTZ NOT NULL DEFAULT now()`)
	return err
}
