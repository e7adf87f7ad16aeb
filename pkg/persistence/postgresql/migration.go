package postgresql

func migrations() map[int]string {
	return map[int]string{
		1: `
			CREATE TABLE executions (
				id VARCHAR(255) PRIMARY KEY,
				workflow_id VARCHAR(255) NOT NULL,
				conversation_id VARCHAR(255) NOT NULL,
				status VARCHAR(20) NOT NULL CHECK (status IN ('running', 'completed', 'failed', 'paused')),
				current_step_id VARCHAR(255) NOT NULL DEFAULT '',
				variables JSONB NOT NULL DEFAULT '{}',
				log JSONB NOT NULL DEFAULT '[]',
				output JSONB,
				error TEXT NOT NULL DEFAULT '',
				failed_step_id VARCHAR(255) NOT NULL DEFAULT '',
				started_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL,
				completed_at TIMESTAMP WITH TIME ZONE
			);

			CREATE INDEX idx_executions_workflow_id ON executions(workflow_id, started_at);
			CREATE INDEX idx_executions_conversation_id ON executions(conversation_id, started_at);
		`,
		2: `
			CREATE INDEX idx_executions_status ON executions(status) WHERE status IN ('running', 'paused');
		`,
	}
}
