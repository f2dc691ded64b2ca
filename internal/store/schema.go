package store

// Schema v1 - libraries, origins, spectra, metadata fields and values.
// Identifiers are left unquoted so both engines fold them the same way.
const sqliteSchemaV1 = `
-- Spectrum libraries using this database (name = the library's unique_id token)
CREATE TABLE IF NOT EXISTS libraries (
  libraryId INTEGER PRIMARY KEY AUTOINCREMENT,
  name VARCHAR(1024) UNIQUE NOT NULL
);

-- Tools or processes that imported spectra
CREATE TABLE IF NOT EXISTS origins (
  originId INTEGER PRIMARY KEY AUTOINCREMENT,
  name VARCHAR(256) UNIQUE NOT NULL
);

-- One row per spectrum file
CREATE TABLE IF NOT EXISTS spectra (
  specId INTEGER PRIMARY KEY AUTOINCREMENT,
  libraryId INTEGER NOT NULL REFERENCES libraries(libraryId) ON DELETE CASCADE,
  filename VARCHAR(256) NOT NULL,
  originId INTEGER NOT NULL REFERENCES origins(originId) ON DELETE CASCADE,
  importTime REAL,
  UNIQUE (libraryId, filename)
);

CREATE INDEX IF NOT EXISTS search_by_filename ON spectra(libraryId, filename);
CREATE INDEX IF NOT EXISTS search_by_id ON spectra(libraryId, specId);

-- Metadata fields set on at least one spectrum
CREATE TABLE IF NOT EXISTS metadata_fields (
  fieldId INTEGER PRIMARY KEY AUTOINCREMENT,
  name VARCHAR(256) UNIQUE NOT NULL
);

-- One value per (spectrum, field); exactly one of the value columns is set
CREATE TABLE IF NOT EXISTS spectrum_metadata (
  specId INTEGER NOT NULL REFERENCES spectra(specId) ON DELETE CASCADE,
  fieldId INTEGER NOT NULL REFERENCES metadata_fields(fieldId) ON DELETE CASCADE,
  libraryId INTEGER NOT NULL REFERENCES libraries(libraryId) ON DELETE CASCADE,
  valueFloat REAL,
  valueString VARCHAR(256),
  PRIMARY KEY (specId, fieldId),
  CHECK ((valueFloat IS NULL) <> (valueString IS NULL))
);

CREATE INDEX IF NOT EXISTS search_metadata_floats ON spectrum_metadata(libraryId, fieldId, valueFloat);
CREATE INDEX IF NOT EXISTS search_metadata_strings ON spectrum_metadata(libraryId, fieldId, valueString);
`

const postgresSchemaV1 = `
CREATE TABLE IF NOT EXISTS libraries (
  libraryId BIGSERIAL PRIMARY KEY,
  name VARCHAR(1024) UNIQUE NOT NULL
);

CREATE TABLE IF NOT EXISTS origins (
  originId BIGSERIAL PRIMARY KEY,
  name VARCHAR(256) UNIQUE NOT NULL
);

CREATE TABLE IF NOT EXISTS spectra (
  specId BIGSERIAL PRIMARY KEY,
  libraryId BIGINT NOT NULL REFERENCES libraries(libraryId) ON DELETE CASCADE,
  filename VARCHAR(256) NOT NULL,
  originId BIGINT NOT NULL REFERENCES origins(originId) ON DELETE CASCADE,
  importTime DOUBLE PRECISION,
  UNIQUE (libraryId, filename)
);

CREATE INDEX IF NOT EXISTS search_by_filename ON spectra(libraryId, filename);
CREATE INDEX IF NOT EXISTS search_by_id ON spectra(libraryId, specId);

CREATE TABLE IF NOT EXISTS metadata_fields (
  fieldId BIGSERIAL PRIMARY KEY,
  name VARCHAR(256) UNIQUE NOT NULL
);

CREATE TABLE IF NOT EXISTS spectrum_metadata (
  specId BIGINT NOT NULL REFERENCES spectra(specId) ON DELETE CASCADE,
  fieldId BIGINT NOT NULL REFERENCES metadata_fields(fieldId) ON DELETE CASCADE,
  libraryId BIGINT NOT NULL REFERENCES libraries(libraryId) ON DELETE CASCADE,
  valueFloat DOUBLE PRECISION,
  valueString VARCHAR(256),
  PRIMARY KEY (specId, fieldId),
  CHECK ((valueFloat IS NULL) <> (valueString IS NULL))
);

CREATE INDEX IF NOT EXISTS search_metadata_floats ON spectrum_metadata(libraryId, fieldId, valueFloat);
CREATE INDEX IF NOT EXISTS search_metadata_strings ON spectrum_metadata(libraryId, fieldId, valueString);
`

const schemaVersionTable = `
CREATE TABLE IF NOT EXISTS schema_version (
  version INTEGER PRIMARY KEY,
  applied_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
)`

// tables lists every table of the current schema
var tables = []string{"libraries", "origins", "spectra", "metadata_fields", "spectrum_metadata"}
