// Package postgres implements the PostgreSQL persistence layer for the
// course access hub.
package postgres

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 001: CREATE CATALOG
// ══════════════════════════════════════════════════════════════════════════════

const migration001Up = `
-- Migration: Create catalog tables (users, courses, modules, lessons)
-- Version: 001

CREATE TABLE IF NOT EXISTS users (
    id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
    track VARCHAR(100) NOT NULL DEFAULT '',
    display_name VARCHAR(100) NOT NULL DEFAULT '',
    is_admin BOOLEAN NOT NULL DEFAULT FALSE,
    is_active BOOLEAN NOT NULL DEFAULT TRUE,
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_users_track ON users(track);
CREATE INDEX IF NOT EXISTS idx_users_active ON users(id) WHERE is_active;

CREATE TABLE IF NOT EXISTS courses (
    id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
    subject VARCHAR(150) NOT NULL,
    title VARCHAR(200) NOT NULL,
    is_active BOOLEAN NOT NULL DEFAULT TRUE,
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_courses_subject ON courses(subject);

CREATE TABLE IF NOT EXISTS modules (
    id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
    course_id UUID NOT NULL REFERENCES courses(id) ON DELETE CASCADE,
    ordem INTEGER NOT NULL,
    title VARCHAR(200) NOT NULL,
    is_active BOOLEAN NOT NULL DEFAULT TRUE,
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    CONSTRAINT valid_module_ordem CHECK (ordem >= 1),
    UNIQUE(course_id, ordem)
);

CREATE INDEX IF NOT EXISTS idx_modules_course_ordem ON modules(course_id, ordem);

CREATE TABLE IF NOT EXISTS lessons (
    id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
    module_id UUID NOT NULL REFERENCES modules(id) ON DELETE CASCADE,
    ordem INTEGER NOT NULL,
    title VARCHAR(200) NOT NULL,
    media_url TEXT NOT NULL DEFAULT '',
    is_active BOOLEAN NOT NULL DEFAULT TRUE,
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    CONSTRAINT valid_lesson_ordem CHECK (ordem >= 1),
    UNIQUE(module_id, ordem)
);

CREATE INDEX IF NOT EXISTS idx_lessons_module_ordem ON lessons(module_id, ordem);
`

const migration001Down = `
DROP TABLE IF EXISTS lessons;
DROP TABLE IF EXISTS modules;
DROP TABLE IF EXISTS courses;
DROP TABLE IF EXISTS users;
`

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 002: CREATE PROGRESS
// ══════════════════════════════════════════════════════════════════════════════

const migration002Up = `
-- Migration: Create progress tables (per-lesson records plus roll-ups)
-- Version: 002

CREATE TABLE IF NOT EXISTS lesson_progress (
    user_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
    lesson_id UUID NOT NULL REFERENCES lessons(id) ON DELETE CASCADE,
    completed BOOLEAN NOT NULL DEFAULT FALSE,
    completed_at TIMESTAMP WITH TIME ZONE,
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    PRIMARY KEY (user_id, lesson_id)
);

CREATE INDEX IF NOT EXISTS idx_lesson_progress_user ON lesson_progress(user_id);
CREATE INDEX IF NOT EXISTS idx_lesson_progress_lesson ON lesson_progress(lesson_id);

CREATE TABLE IF NOT EXISTS module_progress (
    user_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
    module_id UUID NOT NULL REFERENCES modules(id) ON DELETE CASCADE,
    percent INTEGER NOT NULL DEFAULT 0,
    updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    CONSTRAINT valid_module_percent CHECK (percent >= 0 AND percent <= 100),
    PRIMARY KEY (user_id, module_id)
);

CREATE TABLE IF NOT EXISTS course_progress (
    user_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
    course_id UUID NOT NULL REFERENCES courses(id) ON DELETE CASCADE,
    percent INTEGER NOT NULL DEFAULT 0,
    updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    CONSTRAINT valid_course_percent CHECK (percent >= 0 AND percent <= 100),
    PRIMARY KEY (user_id, course_id)
);

CREATE INDEX IF NOT EXISTS idx_course_progress_course ON course_progress(course_id, percent DESC);
`

const migration002Down = `
DROP TABLE IF EXISTS course_progress;
DROP TABLE IF EXISTS module_progress;
DROP TABLE IF EXISTS lesson_progress;
`

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 003: CREATE AUTHORIZATION
// ══════════════════════════════════════════════════════════════════════════════

const migration003Up = `
-- Migration: Create authorization tables (grants and the request queue)
-- Version: 003

CREATE TABLE IF NOT EXISTS authorization_grants (
    id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
    user_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
    course_id UUID NOT NULL REFERENCES courses(id) ON DELETE CASCADE,
    kind VARCHAR(20) NOT NULL,
    module_id UUID REFERENCES modules(id) ON DELETE CASCADE,
    lesson_id UUID REFERENCES lessons(id) ON DELETE CASCADE,
    granted_by UUID NOT NULL,
    reason TEXT NOT NULL DEFAULT '',
    is_active BOOLEAN NOT NULL DEFAULT TRUE,
    expires_at TIMESTAMP WITH TIME ZONE,
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    CONSTRAINT valid_grant_kind CHECK (kind IN ('course', 'module', 'lesson')),
    CONSTRAINT grant_scope CHECK (
        (kind = 'course' AND module_id IS NULL AND lesson_id IS NULL) OR
        (kind = 'module' AND module_id IS NOT NULL AND lesson_id IS NULL) OR
        (kind = 'lesson' AND lesson_id IS NOT NULL)
    )
);

CREATE INDEX IF NOT EXISTS idx_grants_user_course ON authorization_grants(user_id, course_id) WHERE is_active;

CREATE TABLE IF NOT EXISTS authorization_requests (
    id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
    user_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
    course_id UUID NOT NULL REFERENCES courses(id) ON DELETE CASCADE,
    module_id UUID REFERENCES modules(id) ON DELETE CASCADE,
    lesson_id UUID NOT NULL REFERENCES lessons(id) ON DELETE CASCADE,
    status VARCHAR(20) NOT NULL DEFAULT 'pending',
    origin VARCHAR(20) NOT NULL DEFAULT 'manual',
    reason TEXT NOT NULL DEFAULT '',
    resolution_reason TEXT NOT NULL DEFAULT '',
    resolved_by UUID,
    grant_id UUID REFERENCES authorization_grants(id),
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
    resolved_at TIMESTAMP WITH TIME ZONE,

    CONSTRAINT valid_request_status CHECK (status IN ('pending', 'approved', 'rejected')),
    CONSTRAINT valid_request_origin CHECK (origin IN ('manual', 'automatic'))
);

-- At most one open request per user and lesson
CREATE UNIQUE INDEX IF NOT EXISTS idx_requests_pending_unique
    ON authorization_requests(user_id, course_id, lesson_id)
    WHERE status = 'pending';

-- FIFO queue scans for the admin review endpoint
CREATE INDEX IF NOT EXISTS idx_requests_pending_queue
    ON authorization_requests(course_id, created_at)
    WHERE status = 'pending';
`

const migration003Down = `
DROP TABLE IF EXISTS authorization_requests;
DROP TABLE IF EXISTS authorization_grants;
`
