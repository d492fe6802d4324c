package storedb

// schema is the exmdb.sqlite3 layout (spec §4.3). Kept as one string
// rather than a migrations/ directory: this engine ships a single schema
// version per mailbox directory; future changes would follow the
// add-a-migration-step pattern maddy's go-imap-sql dependency uses, but
// nothing in this spec requires that yet.
const schema = `
CREATE TABLE IF NOT EXISTS folders (
	folder_id      INTEGER PRIMARY KEY,
	parent_id      INTEGER,
	folder_type    INTEGER NOT NULL DEFAULT 0, -- 0=generic, 1=search
	change_number  INTEGER NOT NULL,
	is_deleted     INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_folders_parent ON folders(parent_id);

CREATE TABLE IF NOT EXISTS folder_properties (
	folder_id INTEGER NOT NULL,
	proptag   INTEGER NOT NULL,
	propval   BLOB,
	PRIMARY KEY (folder_id, proptag)
);

CREATE TABLE IF NOT EXISTS messages (
	message_id      INTEGER PRIMARY KEY,
	parent_fid      INTEGER,
	parent_attid    INTEGER,
	is_associated   INTEGER NOT NULL DEFAULT 0,
	is_deleted      INTEGER NOT NULL DEFAULT 0,
	change_number   INTEGER NOT NULL,
	read_cn         INTEGER,
	read_state      INTEGER NOT NULL DEFAULT 0,
	message_size    INTEGER NOT NULL DEFAULT 0,
	group_id        INTEGER,
	timer_id        INTEGER,
	mid_string      TEXT,
	deliver_time    INTEGER NOT NULL DEFAULT 0,
	last_mod_time   INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_messages_parent_fid ON messages(parent_fid);
CREATE INDEX IF NOT EXISTS idx_messages_change_number ON messages(change_number);

CREATE TABLE IF NOT EXISTS message_properties (
	message_id INTEGER NOT NULL,
	proptag    INTEGER NOT NULL,
	propval    BLOB,
	cid        INTEGER,
	PRIMARY KEY (message_id, proptag)
);

CREATE TABLE IF NOT EXISTS recipients (
	recipient_id INTEGER PRIMARY KEY AUTOINCREMENT,
	message_id   INTEGER NOT NULL,
	ordinal      INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_recipients_message ON recipients(message_id);

CREATE TABLE IF NOT EXISTS recipients_properties (
	recipient_id INTEGER NOT NULL,
	proptag      INTEGER NOT NULL,
	propval      BLOB,
	PRIMARY KEY (recipient_id, proptag)
);

CREATE TABLE IF NOT EXISTS attachments (
	attachment_id INTEGER PRIMARY KEY AUTOINCREMENT,
	message_id    INTEGER NOT NULL,
	attach_num    INTEGER NOT NULL,
	embedded_mid  INTEGER
);
CREATE INDEX IF NOT EXISTS idx_attachments_message ON attachments(message_id);

CREATE TABLE IF NOT EXISTS attachment_properties (
	attachment_id INTEGER NOT NULL,
	proptag       INTEGER NOT NULL,
	propval       BLOB,
	cid           INTEGER,
	PRIMARY KEY (attachment_id, proptag)
);

CREATE TABLE IF NOT EXISTS read_states (
	message_id INTEGER NOT NULL,
	username   TEXT NOT NULL DEFAULT '',
	is_read    INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (message_id, username)
);

CREATE TABLE IF NOT EXISTS read_cns (
	message_id INTEGER NOT NULL,
	username   TEXT NOT NULL DEFAULT '',
	read_cn    INTEGER NOT NULL,
	PRIMARY KEY (message_id, username)
);

CREATE TABLE IF NOT EXISTS permissions (
	folder_id INTEGER NOT NULL,
	member_id INTEGER NOT NULL,
	username  TEXT NOT NULL,
	rights    INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (folder_id, member_id)
);

CREATE TABLE IF NOT EXISTS rules (
	rule_id    INTEGER PRIMARY KEY AUTOINCREMENT,
	folder_id  INTEGER NOT NULL,
	sequence   INTEGER NOT NULL,
	state      INTEGER NOT NULL,
	provider   TEXT NOT NULL DEFAULT '',
	condition  BLOB,
	actions    BLOB
);
CREATE INDEX IF NOT EXISTS idx_rules_folder ON rules(folder_id, sequence);

CREATE TABLE IF NOT EXISTS search_result (
	folder_id  INTEGER NOT NULL,
	message_id INTEGER NOT NULL,
	PRIMARY KEY (folder_id, message_id)
);

CREATE TABLE IF NOT EXISTS search_folders (
	folder_id  INTEGER PRIMARY KEY,
	restriction BLOB,
	scope      BLOB,
	search_flags INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS message_changes (
	message_id    INTEGER NOT NULL,
	change_number INTEGER NOT NULL,
	indices       BLOB,
	proptags      BLOB,
	PRIMARY KEY (message_id, change_number)
);

CREATE TABLE IF NOT EXISTS allocated_eids (
	range_begin INTEGER NOT NULL,
	range_end   INTEGER NOT NULL,
	alloc_time  INTEGER NOT NULL,
	is_system   INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS replica_mapping (
	replid INTEGER PRIMARY KEY,
	guid   BLOB NOT NULL
);

CREATE TABLE IF NOT EXISTS named_properties (
	propid   INTEGER PRIMARY KEY,
	guid     BLOB NOT NULL,
	kind     INTEGER NOT NULL, -- 0=by id (lid), 1=by name
	lid      INTEGER,
	name     TEXT
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_named_properties_key ON named_properties(guid, kind, lid, name);

CREATE TABLE IF NOT EXISTS property_groups (
	group_id INTEGER PRIMARY KEY AUTOINCREMENT
);

CREATE TABLE IF NOT EXISTS property_groupmaps (
	group_id INTEGER NOT NULL,
	proptag  INTEGER NOT NULL,
	PRIMARY KEY (group_id, proptag)
);

CREATE TABLE IF NOT EXISTS configurations (
	key   TEXT PRIMARY KEY,
	value TEXT
);

CREATE TABLE IF NOT EXISTS content_blobs (
	cid   INTEGER PRIMARY KEY AUTOINCREMENT,
	refs  INTEGER NOT NULL DEFAULT 1
);
`
