// Package migration applies numbered SQL migration files to a database.
//
// Migration files are read from an fs.FS (usually an embedded directory) and
// follow the naming convention {version}_{description}.sql, for example
// "001_initial_schema.sql". Applied versions are tracked in the
// schema_migrations table so each file runs exactly once.
//
// Example usage:
//
//	manager := migration.NewMigrationManager(
//		migration.NewFileScanner(migrationsFS),
//		migration.NewExecutor(db, migration.QuestionPlaceholder),
//		logger,
//	)
//	if err := manager.RunMigrations(ctx); err != nil {
//		return err
//	}
package migration
