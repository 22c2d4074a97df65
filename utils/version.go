package utils

const DvalVersion = "0.3.0"
