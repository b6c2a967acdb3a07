package postgresql

// migrations returns the ordered schema migrations for the approval engine.
func migrations() map[int]string {
	return map[int]string{
		1: `
			CREATE TABLE IF NOT EXISTS requests (
				id UUID PRIMARY KEY,
				organization_id TEXT NOT NULL,
				creator_id TEXT NOT NULL,
				definition_id UUID,
				title TEXT NOT NULL,
				status TEXT NOT NULL,
				mode TEXT NOT NULL DEFAULT 'sequential',
				form_payload JSONB,
				watchers JSONB,
				approvers JSONB,
				metadata JSONB,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL,
				completed_at TIMESTAMP WITH TIME ZONE
			);

			CREATE INDEX IF NOT EXISTS idx_requests_status ON requests (status);
			CREATE INDEX IF NOT EXISTS idx_requests_org ON requests (organization_id);

			CREATE TABLE IF NOT EXISTS request_steps (
				id UUID PRIMARY KEY,
				request_id UUID NOT NULL REFERENCES requests (id),
				step_index INTEGER NOT NULL,
				approver_id TEXT NOT NULL,
				status TEXT NOT NULL,
				due_at TIMESTAMP WITH TIME ZONE,
				escalation_policy TEXT,
				fallback_approver_id TEXT,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL,
				UNIQUE (request_id, step_index)
			);

			CREATE INDEX IF NOT EXISTS idx_request_steps_request ON request_steps (request_id);
			CREATE INDEX IF NOT EXISTS idx_request_steps_due ON request_steps (status, due_at);

			CREATE TABLE IF NOT EXISTS approvals (
				id UUID PRIMARY KEY,
				request_step_id UUID NOT NULL UNIQUE REFERENCES request_steps (id),
				request_id UUID NOT NULL REFERENCES requests (id),
				approver_id TEXT NOT NULL,
				decision TEXT NOT NULL,
				comment TEXT,
				signature_url TEXT,
				signed_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE TABLE IF NOT EXISTS workflow_definitions (
				id UUID PRIMARY KEY,
				organization_id TEXT NOT NULL,
				name TEXT NOT NULL,
				description TEXT,
				steps JSONB NOT NULL,
				settings JSONB NOT NULL,
				form_schema JSONB,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE TABLE IF NOT EXISTS archived_documents (
				id UUID PRIMARY KEY,
				request_id UUID NOT NULL UNIQUE REFERENCES requests (id),
				locator TEXT NOT NULL,
				generated_at TIMESTAMP WITH TIME ZONE NOT NULL,
				generated_by TEXT,
				size_bytes BIGINT
			);

			CREATE TABLE IF NOT EXISTS continuations (
				id UUID PRIMARY KEY,
				request_id UUID NOT NULL REFERENCES requests (id),
				definition_id UUID NOT NULL,
				step_index INTEGER NOT NULL,
				step_results JSONB,
				status TEXT NOT NULL,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				resumed_at TIMESTAMP WITH TIME ZONE
			);

			CREATE INDEX IF NOT EXISTS idx_continuations_request ON continuations (request_id, status);
		`,
	}
}
