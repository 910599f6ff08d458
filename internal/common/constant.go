package common

// AuthorizationHeaderName carries the bearer access token on API requests.
const AuthorizationHeaderName = "Authorization"

// BearerScheme is the only accepted authorization scheme.
const BearerScheme = "Bearer"

// AvatarPrefix is the blob key prefix under which profile pictures are stored.
const AvatarPrefix = "profile_pictures"
