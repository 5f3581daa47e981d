// Package schema defines the database schema for development.
//
// DEVELOPMENT USE ONLY
// This file contains the current database schema and is used for development and testing.
// Before deploying to production, these table definitions should be converted to proper migrations.
package schema

// TableDefinitions contains all the SQL statements to create the database tables
// Don't put REFERENCES and don't put CHECK constraints in the CREATE TABLE statements
var TableDefinitions = []string{
	`CREATE TABLE IF NOT EXISTS settings (
		key VARCHAR(255) PRIMARY KEY,
		value TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS organizations (
		id UUID PRIMARY KEY,
		name VARCHAR(255) NOT NULL,
		mail_domains TEXT[] NOT NULL DEFAULT '{}',
		reply_domain VARCHAR(255),
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS oauth_credentials (
		id UUID PRIMARY KEY,
		organization_id UUID NOT NULL,
		provider VARCHAR(20) NOT NULL,
		subject VARCHAR(255) NOT NULL,
		scopes TEXT[] NOT NULL DEFAULT '{}',
		encrypted_refresh_token TEXT NOT NULL,
		encrypted_access_token TEXT,
		access_token_expires_at TIMESTAMP,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		UNIQUE (organization_id, provider, subject)
	)`,
	`CREATE TABLE IF NOT EXISTS mailboxes (
		id UUID PRIMARY KEY,
		organization_id UUID NOT NULL,
		purpose VARCHAR(20) NOT NULL,
		provider VARCHAR(20) NOT NULL,
		email_address VARCHAR(255) NOT NULL,
		credential_id UUID,
		enabled BOOLEAN NOT NULL DEFAULT TRUE,
		history_cursor VARCHAR(64),
		last_full_sync_at TIMESTAMP,
		last_incremental_sync_at TIMESTAMP,
		last_sync_error TEXT,
		consecutive_failures INTEGER NOT NULL DEFAULT 0,
		paused_until TIMESTAMP,
		pause_reason TEXT,
		degraded BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	// One journal mailbox per organization.
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_mailboxes_journal
		ON mailboxes (organization_id) WHERE purpose = 'journal'`,
	`CREATE INDEX IF NOT EXISTS idx_mailboxes_org ON mailboxes (organization_id)`,
	`CREATE TABLE IF NOT EXISTS blobs (
		id UUID PRIMARY KEY,
		organization_id UUID NOT NULL,
		kind VARCHAR(20) NOT NULL,
		content_hash VARCHAR(64) NOT NULL,
		size_bytes BIGINT NOT NULL,
		storage_key VARCHAR(512) NOT NULL,
		content_type VARCHAR(255),
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		UNIQUE (organization_id, kind, content_hash)
	)`,
	`CREATE TABLE IF NOT EXISTS message_occurrences (
		id UUID PRIMARY KEY,
		organization_id UUID NOT NULL,
		mailbox_id UUID NOT NULL,
		provider_message_id VARCHAR(128) NOT NULL,
		provider_thread_id VARCHAR(128),
		provider_history_id VARCHAR(64),
		internal_date TIMESTAMP,
		label_ids TEXT[] NOT NULL DEFAULT '{}',
		direction VARCHAR(10) NOT NULL DEFAULT 'inbound',
		state VARCHAR(20) NOT NULL DEFAULT 'discovered',
		raw_blob_id UUID,
		raw_content_hash VARCHAR(64),
		canonical_message_id UUID,
		ticket_id UUID,
		original_recipient VARCHAR(255),
		recipient_source VARCHAR(30) NOT NULL DEFAULT 'unknown',
		recipient_confidence VARCHAR(10) NOT NULL DEFAULT 'low',
		recipient_evidence JSONB NOT NULL DEFAULT '{}',
		fetch_error TEXT,
		parse_error TEXT,
		stitch_error TEXT,
		route_error TEXT,
		fetched_at TIMESTAMP,
		parsed_at TIMESTAMP,
		stitched_at TIMESTAMP,
		routed_at TIMESTAMP,
		provider_deleted_at TIMESTAMP,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		UNIQUE (mailbox_id, provider_message_id)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_occurrences_org_state
		ON message_occurrences (organization_id, state)`,
	`CREATE INDEX IF NOT EXISTS idx_occurrences_canonical
		ON message_occurrences (canonical_message_id)`,
	`CREATE INDEX IF NOT EXISTS idx_occurrences_mailbox
		ON message_occurrences (mailbox_id, state)`,
	`CREATE TABLE IF NOT EXISTS canonical_messages (
		id UUID PRIMARY KEY,
		organization_id UUID NOT NULL,
		fingerprint_v1 VARCHAR(64) NOT NULL,
		body_hash VARCHAR(64) NOT NULL,
		collision_group_id UUID,
		subject TEXT,
		subject_norm TEXT,
		from_email VARCHAR(255),
		from_name VARCHAR(255),
		to_list JSONB NOT NULL DEFAULT '[]',
		cc_list JSONB NOT NULL DEFAULT '[]',
		reply_to_list JSONB NOT NULL DEFAULT '[]',
		date_header TIMESTAMP,
		snippet TEXT,
		headers JSONB NOT NULL DEFAULT '{}',
		body_text TEXT,
		body_html TEXT,
		rfc_message_id VARCHAR(998),
		in_reply_to VARCHAR(998),
		references_ids TEXT[] NOT NULL DEFAULT '{}',
		direction VARCHAR(10) NOT NULL DEFAULT 'inbound',
		parser_version INTEGER NOT NULL,
		sanitizer_revision VARCHAR(32),
		x_oss_ticket_id UUID,
		x_oss_message_id VARCHAR(64),
		ticket_id UUID,
		stitch_reason VARCHAR(30),
		stitch_confidence VARCHAR(10),
		stitched_at TIMESTAMP,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		UNIQUE (organization_id, fingerprint_v1, body_hash)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_canonical_fingerprint
		ON canonical_messages (organization_id, fingerprint_v1)`,
	// Supports the subject_match stitch lookup.
	`CREATE INDEX IF NOT EXISTS idx_canonical_subject
		ON canonical_messages (organization_id, subject_norm)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_canonical_oss_message_id
		ON canonical_messages (organization_id, x_oss_message_id)
		WHERE x_oss_message_id IS NOT NULL`,
	`CREATE INDEX IF NOT EXISTS idx_canonical_ticket
		ON canonical_messages (ticket_id)`,
	`CREATE TABLE IF NOT EXISTS canonical_message_rfc_ids (
		organization_id UUID NOT NULL,
		rfc_message_id VARCHAR(998) NOT NULL,
		canonical_message_id UUID NOT NULL,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (organization_id, rfc_message_id, canonical_message_id)
	)`,
	`CREATE TABLE IF NOT EXISTS attachments (
		id UUID PRIMARY KEY,
		organization_id UUID NOT NULL,
		canonical_message_id UUID NOT NULL,
		filename VARCHAR(512),
		content_type VARCHAR(255),
		size_bytes BIGINT NOT NULL,
		is_inline BOOLEAN NOT NULL DEFAULT FALSE,
		content_id VARCHAR(255),
		content_hash VARCHAR(64) NOT NULL,
		blob_id UUID,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		UNIQUE (canonical_message_id, content_hash)
	)`,
	`CREATE TABLE IF NOT EXISTS collision_groups (
		id UUID PRIMARY KEY,
		organization_id UUID NOT NULL,
		fingerprint_v1 VARCHAR(64) NOT NULL,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		UNIQUE (organization_id, fingerprint_v1)
	)`,
	`CREATE TABLE IF NOT EXISTS tickets (
		id UUID PRIMARY KEY,
		organization_id UUID NOT NULL,
		code VARCHAR(30) NOT NULL,
		status VARCHAR(20) NOT NULL DEFAULT 'new',
		priority VARCHAR(10) NOT NULL DEFAULT 'normal',
		subject TEXT,
		subject_norm TEXT,
		requester_email VARCHAR(255),
		requester_name VARCHAR(255),
		assignee_user_id UUID,
		assignee_queue_id UUID,
		stitch_reason VARCHAR(30),
		stitch_confidence VARCHAR(10),
		last_activity_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		closed_at TIMESTAMP,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		UNIQUE (organization_id, code)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_tickets_org_status ON tickets (organization_id, status)`,
	`CREATE INDEX IF NOT EXISTS idx_tickets_activity ON tickets (organization_id, last_activity_at)`,
	// Supports the subject_match stitch fallback.
	`CREATE INDEX IF NOT EXISTS idx_tickets_subject ON tickets (organization_id, subject_norm)`,
	`CREATE INDEX IF NOT EXISTS idx_tickets_requester
		ON tickets (organization_id, requester_email, last_activity_at DESC)`,
	`CREATE TABLE IF NOT EXISTS ticket_events (
		id UUID PRIMARY KEY,
		organization_id UUID NOT NULL,
		ticket_id UUID NOT NULL,
		kind VARCHAR(30) NOT NULL,
		actor VARCHAR(255),
		payload JSONB NOT NULL DEFAULT '{}',
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE INDEX IF NOT EXISTS idx_ticket_events_ticket ON ticket_events (ticket_id, created_at)`,
	`CREATE TABLE IF NOT EXISTS ticket_queues (
		id UUID PRIMARY KEY,
		organization_id UUID NOT NULL,
		name VARCHAR(255) NOT NULL,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		UNIQUE (organization_id, name)
	)`,
	`CREATE TABLE IF NOT EXISTS routing_allowlist (
		id UUID PRIMARY KEY,
		organization_id UUID NOT NULL,
		pattern VARCHAR(255) NOT NULL,
		enabled BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS routing_rules (
		id UUID PRIMARY KEY,
		organization_id UUID NOT NULL,
		name VARCHAR(255) NOT NULL DEFAULT '',
		priority INTEGER NOT NULL DEFAULT 0,
		enabled BOOLEAN NOT NULL DEFAULT TRUE,
		recipient_pattern VARCHAR(255),
		sender_domain_pattern VARCHAR(255),
		sender_email_pattern VARCHAR(255),
		direction VARCHAR(10),
		assign_queue_id UUID,
		assign_user_id UUID,
		set_status VARCHAR(20),
		drop_ticket BOOLEAN NOT NULL DEFAULT FALSE,
		auto_close BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE INDEX IF NOT EXISTS idx_routing_rules_org ON routing_rules (organization_id, priority)`,
	`CREATE TABLE IF NOT EXISTS jobs (
		id UUID PRIMARY KEY,
		organization_id UUID NOT NULL,
		mailbox_id UUID,
		type VARCHAR(40) NOT NULL,
		payload JSONB NOT NULL DEFAULT '{}',
		status VARCHAR(10) NOT NULL DEFAULT 'queued',
		attempts INTEGER NOT NULL DEFAULT 0,
		max_attempts INTEGER NOT NULL DEFAULT 5,
		run_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		idempotency_key VARCHAR(255),
		lock_owner VARCHAR(64),
		lock_expires_at TIMESTAMP,
		last_error TEXT,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	// Enqueue dedup only cares about live jobs; finished rows may repeat keys.
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_jobs_idempotency
		ON jobs (organization_id, type, idempotency_key)
		WHERE status IN ('queued', 'running') AND idempotency_key IS NOT NULL`,
	`CREATE INDEX IF NOT EXISTS idx_jobs_lease
		ON jobs (type, run_at) WHERE status = 'queued'`,
	`CREATE INDEX IF NOT EXISTS idx_jobs_running
		ON jobs (lock_expires_at) WHERE status = 'running'`,
	`CREATE INDEX IF NOT EXISTS idx_jobs_org_status ON jobs (organization_id, status)`,
	`CREATE TABLE IF NOT EXISTS sync_events (
		id UUID PRIMARY KEY,
		organization_id UUID NOT NULL,
		mailbox_id UUID NOT NULL,
		kind VARCHAR(30) NOT NULL,
		detail JSONB NOT NULL DEFAULT '{}',
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE INDEX IF NOT EXISTS idx_sync_events_mailbox ON sync_events (mailbox_id, created_at)`,
}

// TableNames lists every table in creation order; drops run in reverse.
var TableNames = []string{
	"settings",
	"organizations",
	"oauth_credentials",
	"mailboxes",
	"blobs",
	"message_occurrences",
	"canonical_messages",
	"canonical_message_rfc_ids",
	"attachments",
	"collision_groups",
	"tickets",
	"ticket_events",
	"ticket_queues",
	"routing_allowlist",
	"routing_rules",
	"jobs",
	"sync_events",
}
