package sqlinline

const QEnsureProviderCredentials = `--sql 1a79a77d-e162-4ec2-ab6c-f69d447cc0de
create table if not exists provider_credentials (
    provider text primary key,
    api_key text not null,
    properties jsonb not null default '{}'::jsonb,
    created_at timestamptz not null default now(),
    updated_at timestamptz not null default now()
);
`

const QSelectProviderCredential = `--sql 9fde5b00-fab3-4e6c-9742-23344e286546
select api_key
from provider_credentials
where provider = $1::text
limit 1;
`

const QUpsertProviderCredential = `--sql c278d483-a354-4d3d-bc2b-0967359b3049
with incoming as (
    select
        $1::text as provider,
        $2::text as api_key,
        coalesce($3::jsonb, '{}'::jsonb) as properties
)
insert into provider_credentials (provider, api_key, properties, created_at, updated_at)
values ((select provider from incoming), (select api_key from incoming), (select properties from incoming), now(), now())
on conflict (provider) do update set
    api_key = excluded.api_key,
    properties = excluded.properties,
    updated_at = now();
`

const QDeleteProviderCredential = `--sql e42cb8c0-8a5e-4f61-bb04-1816156e6c09
delete from provider_credentials
where provider = $1::text;
`
