package postgresql

func migrations() map[int]string {
	return map[int]string{
		1: `
			CREATE TABLE journeys (
				id UUID PRIMARY KEY,
				name VARCHAR(255) NOT NULL,
				status VARCHAR(50) NOT NULL CHECK (status IN ('draft', 'active', 'paused')),
				current_version_id UUID,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_journeys_status ON journeys(status);

			CREATE TABLE journey_versions (
				id UUID PRIMARY KEY,
				journey_id UUID NOT NULL REFERENCES journeys(id) ON DELETE CASCADE,
				number INT NOT NULL,
				graph JSONB NOT NULL,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				UNIQUE (journey_id, number)
			);

			CREATE INDEX idx_journey_versions_journey_id ON journey_versions(journey_id);
		`,
		2: `
			CREATE TABLE enrollments (
				id UUID PRIMARY KEY,
				journey_id UUID NOT NULL,
				version_id UUID NOT NULL REFERENCES journey_versions(id),
				subject_id VARCHAR(255) NOT NULL,
				current_node_id VARCHAR(255),
				status VARCHAR(50) NOT NULL CHECK (status IN ('active', 'completed', 'failed')),
				context JSONB,
				resume_at TIMESTAMP WITH TIME ZONE,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_enrollments_journey_id ON enrollments(journey_id);
			CREATE INDEX idx_enrollments_subject_id ON enrollments(subject_id);
			-- Backs the delay sweep query.
			CREATE INDEX idx_enrollments_due ON enrollments(status, resume_at) WHERE resume_at IS NOT NULL;

			CREATE TABLE execution_log (
				seq BIGSERIAL PRIMARY KEY,
				id UUID NOT NULL,
				enrollment_id UUID NOT NULL,
				node_id VARCHAR(255),
				action VARCHAR(50) NOT NULL CHECK (action IN ('enter', 'process', 'exit', 'warning', 'error')),
				message TEXT NOT NULL DEFAULT '',
				timestamp TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_execution_log_enrollment_id ON execution_log(enrollment_id);
		`,
	}
}
