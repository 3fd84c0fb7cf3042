package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"alert-backend/config"
	"alert-backend/models"

	"github.com/apex/log"
	_ "github.com/go-sql-driver/mysql"
)

// Database handles all database operations
type Database struct {
	db *sql.DB
}

// dsn builds the MySQL connection string. clientFoundRows makes
// RowsAffected count matched rows instead of changed rows; without it a
// repeated update with identical values reports 0 rows and looks like a
// missing row.
func dsn(cfg *config.Config) string {
	return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?parseTime=true&clientFoundRows=true",
		cfg.DBUser, cfg.DBPassword, cfg.DBHost, cfg.DBPort, cfg.DBName)
}

// NewDatabase creates a new database connection
func NewDatabase(cfg *config.Config) (*Database, error) {
	db, err := sql.Open("mysql", dsn(cfg))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	log.Infof("Database connected to %s:%s/%s", cfg.DBHost, cfg.DBPort, cfg.DBName)

	return &Database{db: db}, nil
}

// NewWithDB wraps an existing connection handle.
func NewWithDB(db *sql.DB) *Database {
	return &Database{db: db}
}

// Close closes the database connection
func (d *Database) Close() error {
	return d.db.Close()
}

// alertViewColumns is the joined projection every alert view shares.
const alertViewColumns = `
	SELECT
		alarmas.id AS id_alarma,
		alarmas.mensaje,
		alarmas.latitud,
		alarmas.longitud,
		alarmas.foto_url,
		usuarios.Nombre AS nombre_usuario,
		usuarios.Apellido AS apellido_usuario,
		usuarios.telefono AS telefono_usuario,
		usuarios.rol AS rol_usuario,
		usuarios.dependencia AS dependencia_usuario,
		georeferencias.descripcion AS descripcion_georeferencia,
		tipo_alerta.descripcion AS descripcion_tipo_alerta,
		DATE_FORMAT(alarmas.timestamp, '%Y-%m-%d %H:%i:%s') AS fecha
	FROM alarmas
	JOIN usuarios ON alarmas.id_usuario = usuarios.id
	LEFT JOIN georeferencias ON alarmas.id_georeferencia = georeferencias.id
	JOIN tipo_alerta ON alarmas.id_tipo = tipo_alerta.id`

func scanAlertView(row interface {
	Scan(dest ...interface{}) error
}) (*models.AlertView, error) {
	var (
		view       models.AlertView
		message    sql.NullString
		latitude   sql.NullFloat64
		longitude  sql.NullFloat64
		photoURL   sql.NullString
		phone      sql.NullString
		unit       sql.NullString
		geoRefDesc sql.NullString
	)
	err := row.Scan(
		&view.ID,
		&message,
		&latitude,
		&longitude,
		&photoURL,
		&view.UserFirstName,
		&view.UserLastName,
		&phone,
		&view.UserRole,
		&unit,
		&geoRefDesc,
		&view.TypeDesc,
		&view.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if message.Valid {
		view.Message = &message.String
	}
	if latitude.Valid {
		view.Latitude = &latitude.Float64
	}
	if longitude.Valid {
		view.Longitude = &longitude.Float64
	}
	if photoURL.Valid {
		view.PhotoURL = &photoURL.String
	}
	if phone.Valid {
		view.UserPhone = &phone.String
	}
	if unit.Valid {
		view.UserUnit = &unit.String
	}
	if geoRefDesc.Valid {
		view.GeoRefDesc = &geoRefDesc.String
	}
	return &view, nil
}

// InsertAlert persists a new alarmas row and returns its id.
func (d *Database) InsertAlert(ctx context.Context, a *models.Alert) (int64, error) {
	query := `
		INSERT INTO alarmas (id_usuario, id_tipo, mensaje, latitud, longitud, foto_url, id_georeferencia, id_sirena, estado, feedback)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	result, err := d.db.ExecContext(ctx, query,
		a.UserID, a.TypeID, a.Message, a.Latitude, a.Longitude,
		a.PhotoURL, a.GeoRefID, a.SirenID, a.State, a.Feedback)
	if err != nil {
		return 0, fmt.Errorf("failed to insert alert: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get inserted alert id: %w", err)
	}
	return id, nil
}

// ActiveAlerts retrieves all alerts whose estado is still active.
func (d *Database) ActiveAlerts(ctx context.Context) ([]models.AlertView, error) {
	query := alertViewColumns + `
	WHERE alarmas.estado = ?`

	rows, err := d.db.QueryContext(ctx, query, models.StateActive)
	if err != nil {
		return nil, fmt.Errorf("failed to query active alerts: %w", err)
	}
	defer rows.Close()

	var alerts []models.AlertView
	for rows.Next() {
		view, err := scanAlertView(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan alert: %w", err)
		}
		alerts = append(alerts, *view)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating active alerts: %w", err)
	}
	return alerts, nil
}

// AlertByID retrieves a single joined alert view.
func (d *Database) AlertByID(ctx context.Context, id int64) (*models.AlertView, error) {
	query := alertViewColumns + `
	WHERE alarmas.id = ?`

	view, err := scanAlertView(d.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("alert %d: %w", id, sql.ErrNoRows)
		}
		return nil, fmt.Errorf("failed to get alert by id: %w", err)
	}
	return view, nil
}

// LatestAlert retrieves the most recently created alert across all states.
func (d *Database) LatestAlert(ctx context.Context) (*models.AlertView, error) {
	query := alertViewColumns + `
	ORDER BY alarmas.timestamp DESC
	LIMIT 1`

	view, err := scanAlertView(d.db.QueryRowContext(ctx, query))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("no alerts: %w", sql.ErrNoRows)
		}
		return nil, fmt.Errorf("failed to get latest alert: %w", err)
	}
	return view, nil
}

// ResolveAlert records the feedback and flips the alert to resolved in a
// single statement.
func (d *Database) ResolveAlert(ctx context.Context, id int64, feedback string) error {
	result, err := d.db.ExecContext(ctx,
		"UPDATE alarmas SET estado = ?, feedback = ? WHERE id = ?",
		models.StateResolved, feedback, id)
	if err != nil {
		return fmt.Errorf("failed to resolve alert: %w", err)
	}
	return requireRow(result, fmt.Sprintf("alert %d", id))
}

// SetAlertState toggles the estado flag of an alert.
func (d *Database) SetAlertState(ctx context.Context, id int64, estado int) error {
	result, err := d.db.ExecContext(ctx,
		"UPDATE alarmas SET estado = ? WHERE id = ?", estado, id)
	if err != nil {
		return fmt.Errorf("failed to update alert state: %w", err)
	}
	return requireRow(result, fmt.Sprintf("alert %d", id))
}

// SetSirenState toggles the estado flag of a siren.
func (d *Database) SetSirenState(ctx context.Context, sirenID int64, estado int) error {
	result, err := d.db.ExecContext(ctx,
		"UPDATE sirenas SET estado = ? WHERE id = ?", estado, sirenID)
	if err != nil {
		return fmt.Errorf("failed to update siren state: %w", err)
	}
	return requireRow(result, fmt.Sprintf("siren %d", sirenID))
}

// AssignAlertSiren stamps an alert with a siren reference.
func (d *Database) AssignAlertSiren(ctx context.Context, alertID, sirenID int64) error {
	result, err := d.db.ExecContext(ctx,
		"UPDATE alarmas SET id_sirena = ? WHERE id = ?", sirenID, alertID)
	if err != nil {
		return fmt.Errorf("failed to assign siren to alert: %w", err)
	}
	return requireRow(result, fmt.Sprintf("alert %d", alertID))
}

// AlertTypes retrieves the full tipo_alerta taxonomy.
func (d *Database) AlertTypes(ctx context.Context) ([]models.AlertType, error) {
	rows, err := d.db.QueryContext(ctx, "SELECT id, descripcion FROM tipo_alerta")
	if err != nil {
		return nil, fmt.Errorf("failed to query alert types: %w", err)
	}
	defer rows.Close()

	var types []models.AlertType
	for rows.Next() {
		var t models.AlertType
		if err := rows.Scan(&t.ID, &t.Description); err != nil {
			return nil, fmt.Errorf("failed to scan alert type: %w", err)
		}
		types = append(types, t)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating alert types: %w", err)
	}
	return types, nil
}

// RandomUser samples one usuarios row uniformly.
func (d *Database) RandomUser(ctx context.Context) (*models.SampledUser, error) {
	return d.randomAccount(ctx, "usuarios")
}

// RandomAdmin samples one admin row uniformly.
func (d *Database) RandomAdmin(ctx context.Context) (*models.SampledUser, error) {
	return d.randomAccount(ctx, "admin")
}

func (d *Database) randomAccount(ctx context.Context, table string) (*models.SampledUser, error) {
	query := fmt.Sprintf("SELECT id, username, mail FROM %s ORDER BY RAND() LIMIT 1", table)

	var user models.SampledUser
	err := d.db.QueryRowContext(ctx, query).Scan(&user.ID, &user.Username, &user.Mail)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("no rows in %s: %w", table, sql.ErrNoRows)
		}
		return nil, fmt.Errorf("failed to sample %s: %w", table, err)
	}
	return &user, nil
}

// requireRow maps a zero-row update to sql.ErrNoRows.
func requireRow(result sql.Result, what string) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%s: %w", what, sql.ErrNoRows)
	}
	return nil
}
