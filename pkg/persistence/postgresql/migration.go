package postgresql

func migrations() map[int]string {
	return map[int]string{
		1: `
			CREATE TABLE accounts (
				id VARCHAR(255) PRIMARY KEY,
				username VARCHAR(255) NOT NULL,
				group_id VARCHAR(255),
				status VARCHAR(50) NOT NULL,
				proxy_url TEXT,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_accounts_group_id ON accounts(group_id);
			CREATE INDEX idx_accounts_status ON accounts(status);

			CREATE TABLE scheduled_posts (
				id VARCHAR(255) PRIMARY KEY,
				account_id VARCHAR(255) NOT NULL,
				content TEXT NOT NULL,
				media_ids JSONB,
				scheduled_at TIMESTAMP WITH TIME ZONE NOT NULL,
				status VARCHAR(50) NOT NULL,
				error_message TEXT,
				executed_at TIMESTAMP WITH TIME ZONE,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_scheduled_posts_status ON scheduled_posts(status);
			CREATE INDEX idx_scheduled_posts_scheduled_at ON scheduled_posts(scheduled_at);
			CREATE INDEX idx_scheduled_posts_account_id ON scheduled_posts(account_id);

			CREATE TABLE automation_tasks (
				id VARCHAR(255) PRIMARY KEY,
				name VARCHAR(255) NOT NULL,
				action_type VARCHAR(50) NOT NULL,
				is_enabled BOOLEAN NOT NULL DEFAULT false,
				account_ids JSONB NOT NULL,
				target_type VARCHAR(50) NOT NULL,
				target_value TEXT,
				interval_minutes INT NOT NULL,
				daily_limit INT NOT NULL,
				today_count INT NOT NULL DEFAULT 0,
				last_run_at TIMESTAMP WITH TIME ZONE,
				next_run_at TIMESTAMP WITH TIME ZONE,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_automation_tasks_enabled ON automation_tasks(is_enabled);
			CREATE INDEX idx_automation_tasks_next_run_at ON automation_tasks(next_run_at);

			CREATE TABLE workflows (
				id VARCHAR(255) PRIMARY KEY,
				name VARCHAR(255) NOT NULL,
				is_enabled BOOLEAN NOT NULL DEFAULT false,
				trigger_type VARCHAR(50) NOT NULL,
				trigger_config JSONB,
				last_run_at TIMESTAMP WITH TIME ZONE,
				next_run_at TIMESTAMP WITH TIME ZONE,
				run_count INT NOT NULL DEFAULT 0,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_workflows_trigger_type ON workflows(trigger_type);
			CREATE INDEX idx_workflows_next_run_at ON workflows(next_run_at);

			CREATE TABLE workflow_steps (
				id VARCHAR(255) NOT NULL,
				workflow_id VARCHAR(255) NOT NULL REFERENCES workflows(id) ON DELETE CASCADE,
				name VARCHAR(255) NOT NULL,
				step_type VARCHAR(50) NOT NULL,
				action_config JSONB,
				condition_config JSONB,
				on_success VARCHAR(255),
				on_failure VARCHAR(255),
				enabled BOOLEAN NOT NULL DEFAULT true,
				position INT NOT NULL DEFAULT 0,
				PRIMARY KEY (workflow_id, id)
			);

			CREATE INDEX idx_workflow_steps_workflow_id ON workflow_steps(workflow_id);

			CREATE TABLE automation_logs (
				id VARCHAR(255) PRIMARY KEY,
				task_id VARCHAR(255) NOT NULL,
				account_id VARCHAR(255) NOT NULL,
				action_type VARCHAR(50) NOT NULL,
				target_url TEXT,
				status VARCHAR(50) NOT NULL,
				error_message TEXT,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_automation_logs_task_id ON automation_logs(task_id);
			CREATE INDEX idx_automation_logs_created_at ON automation_logs(created_at);

			CREATE TABLE action_logs (
				id VARCHAR(255) PRIMARY KEY,
				account_id VARCHAR(255) NOT NULL,
				action_type VARCHAR(50) NOT NULL,
				target_url TEXT,
				status VARCHAR(50) NOT NULL,
				error_message TEXT,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_action_logs_account_id ON action_logs(account_id);
			CREATE INDEX idx_action_logs_created_at ON action_logs(created_at);

			CREATE TABLE workflow_logs (
				id VARCHAR(255) PRIMARY KEY,
				workflow_id VARCHAR(255) NOT NULL,
				run_id VARCHAR(255) NOT NULL,
				step_id VARCHAR(255),
				status VARCHAR(50) NOT NULL,
				started_at TIMESTAMP WITH TIME ZONE NOT NULL,
				completed_at TIMESTAMP WITH TIME ZONE,
				error_message TEXT,
				result_data JSONB
			);

			CREATE INDEX idx_workflow_logs_run_id ON workflow_logs(run_id);
			CREATE INDEX idx_workflow_logs_workflow_id ON workflow_logs(workflow_id);

			CREATE TABLE resumptions (
				id VARCHAR(255) PRIMARY KEY,
				workflow_id VARCHAR(255) NOT NULL,
				run_id VARCHAR(255) NOT NULL,
				step_id VARCHAR(255) NOT NULL,
				resume_at TIMESTAMP WITH TIME ZONE NOT NULL,
				state JSONB NOT NULL,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_resumptions_resume_at ON resumptions(resume_at);
		`,
	}
}
