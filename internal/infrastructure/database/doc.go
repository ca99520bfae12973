// Package database opens the SQLite file that backs BlueGauge's persistent
// state and applies its schema migrations.
//
// Two tables live here: devices, which lets the registry keep identities
// stable across restarts, and battery_history, the append-only reading log
// pruned by retention. All statements are parameterised.
//
//	db, err := database.Open(ctx, cfg.Database)
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx, migrations.FS); err != nil {
//	    return err
//	}
package database
